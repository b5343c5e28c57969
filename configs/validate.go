package configs

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid configuration field.
type FieldError struct {
	Key    string
	Err    error
	Detail string
}

func (e FieldError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Key, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

// ValidationError lists every problem found in a Config.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the sentinel of every field so errors.Is works on the aggregate.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields))
	for _, f := range e.Fields {
		errs = append(errs, f.Err)
	}
	return errs
}

// Keys returns the keys of the invalid fields.
func (e *ValidationError) Keys() []string {
	keys := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// fieldValidator registers a custom validation tag
type fieldValidator interface {
	Register() (validator.Func, string)
}

type notBlankValidator struct{}

func (notBlankValidator) Register() (validator.Func, string) {
	return func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return true
		}
		return strings.TrimSpace(field.String()) != ""
	}, "notblank"
}

type notPlaceholderValidator struct{}

func (notPlaceholderValidator) Register() (validator.Func, string) {
	return func(fl validator.FieldLevel) bool {
		return !isPlaceholder(fl.FieldName(), fl.Field().String())
	}, "notplaceholder"
}

type sheetsIDValidator struct{}

func (sheetsIDValidator) Register() (validator.Func, string) {
	return func(fl validator.FieldLevel) bool {
		return validSheetsID(fl.Field().String())
	}, "sheetsid"
}

type appsScriptURLValidator struct{}

func (appsScriptURLValidator) Register() (validator.Func, string) {
	return func(fl validator.FieldLevel) bool {
		return checkAppsScriptURL(fl.Field().String()) == ""
	}, "appsscripturl"
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// Report fields by their configuration key rather than the Go field name.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		for _, fv := range []fieldValidator{
			notBlankValidator{},
			notPlaceholderValidator{},
			sheetsIDValidator{},
			appsScriptURLValidator{},
		} {
			fn, tag := fv.Register()
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("register %s validation: %v", tag, err))
			}
		}
		validate = v
	})
	return validate
}

// Validate reports every field that is blank, still a placeholder, or malformed.
func (c Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	ve := &ValidationError{}
	for _, fe := range validationErrs {
		ve.Fields = append(ve.Fields, toFieldError(fe, c))
	}
	return ve
}

func toFieldError(fe validator.FieldError, c Config) FieldError {
	key := fe.Field()
	switch fe.Tag() {
	case "notblank":
		return FieldError{Key: key, Err: ErrMissing}
	case "notplaceholder":
		return FieldError{Key: key, Err: ErrPlaceholder, Detail: "copy " + TemplateFileName + " to " + RuntimeFileName + " and fill in real values"}
	case "sheetsid":
		return FieldError{Key: key, Err: ErrInvalid, Detail: "expected the ID segment of a spreadsheet URL"}
	case "appsscripturl":
		return FieldError{Key: key, Err: ErrInvalid, Detail: checkAppsScriptURL(c.AppsScriptURL)}
	default:
		return FieldError{Key: key, Err: ErrInvalid, Detail: "failed on the '" + fe.Tag() + "' tag"}
	}
}

func isPlaceholder(key, value string) bool {
	p, ok := placeholders[key]
	return ok && strings.TrimSpace(value) == p
}

var appsScriptHosts = map[string]bool{
	"script.google.com":             true,
	"script.googleusercontent.com": true,
}

// checkAppsScriptURL returns "" for a usable web app URL, otherwise the reason it is not.
func checkAppsScriptURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "not a URL"
	}
	if u.Scheme != "https" {
		return "scheme must be https"
	}
	if !appsScriptHosts[strings.ToLower(u.Hostname())] {
		return "host must be script.google.com"
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/exec") && !strings.HasSuffix(path, "/dev") {
		return "path must end with /exec or /dev"
	}
	return ""
}
