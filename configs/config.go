package configs

import "errors"

// Keys of the configuration record, in declaration order.
const (
	KeyGoogleAPIKey   = "GOOGLE_API_KEY"
	KeyGoogleSheetsID = "GOOGLE_SHEETS_ID"
	KeyAppsScriptURL  = "APPS_SCRIPT_URL"
)

// Placeholder values shipped in the template. None of them may be used at runtime.
const (
	PlaceholderGoogleAPIKey   = "YOUR_GOOGLE_API_KEY_HERE"
	PlaceholderGoogleSheetsID = "YOUR_GOOGLE_SHEETS_ID_HERE"
	PlaceholderAppsScriptURL  = "YOUR_APPS_SCRIPT_URL_HERE"
)

var (
	// ErrMissing marks a field that is empty or blank.
	ErrMissing = errors.New("value is required")
	// ErrPlaceholder marks a field that still holds its template value.
	ErrPlaceholder = errors.New("value is still the template placeholder")
	// ErrInvalid marks a field whose value is malformed.
	ErrInvalid = errors.New("value is malformed")
)

// Config is the credential record read by the tracker web app.
type Config struct {
	// GoogleAPIKey comes from https://console.cloud.google.com/apis/credentials
	GoogleAPIKey string `env:"GOOGLE_API_KEY" json:"GOOGLE_API_KEY" validate:"notblank,notplaceholder"`

	// GoogleSheetsID is found in the spreadsheet URL:
	// https://docs.google.com/spreadsheets/d/{SHEETS_ID}/edit
	GoogleSheetsID string `env:"GOOGLE_SHEETS_ID" json:"GOOGLE_SHEETS_ID" validate:"notblank,notplaceholder,sheetsid"`

	// AppsScriptURL is the deployed web app URL from https://script.google.com/
	AppsScriptURL string `env:"APPS_SCRIPT_URL" json:"APPS_SCRIPT_URL" validate:"notblank,notplaceholder,appsscripturl"`
}

var placeholders = map[string]string{
	KeyGoogleAPIKey:   PlaceholderGoogleAPIKey,
	KeyGoogleSheetsID: PlaceholderGoogleSheetsID,
	KeyAppsScriptURL:  PlaceholderAppsScriptURL,
}

// Keys returns the configuration keys in declaration order.
func Keys() []string {
	return []string{KeyGoogleAPIKey, KeyGoogleSheetsID, KeyAppsScriptURL}
}

// PlaceholderFor returns the template value of key, or "" for unknown keys.
func PlaceholderFor(key string) string {
	return placeholders[key]
}

// Template returns the record as distributed, with every field set to its placeholder.
func Template() Config {
	return Config{
		GoogleAPIKey:   PlaceholderGoogleAPIKey,
		GoogleSheetsID: PlaceholderGoogleSheetsID,
		AppsScriptURL:  PlaceholderAppsScriptURL,
	}
}

// Fields returns the record as key/value pairs.
func (c Config) Fields() map[string]string {
	return map[string]string{
		KeyGoogleAPIKey:   c.GoogleAPIKey,
		KeyGoogleSheetsID: c.GoogleSheetsID,
		KeyAppsScriptURL:  c.AppsScriptURL,
	}
}

// Placeholders returns the keys whose value still equals the template placeholder.
func (c Config) Placeholders() []string {
	fields := c.Fields()
	var keys []string
	for _, key := range Keys() {
		if isPlaceholder(key, fields[key]) {
			keys = append(keys, key)
		}
	}
	return keys
}

// IsTemplate reports whether every field still holds its placeholder.
func (c Config) IsTemplate() bool {
	return len(c.Placeholders()) == len(Keys())
}

// Masked returns a copy safe to log. Only the API key is secret.
func (c Config) Masked() Config {
	c.GoogleAPIKey = maskSecret(c.GoogleAPIKey)
	return c
}

func maskSecret(s string) string {
	if s == "" || isPlaceholder(KeyGoogleAPIKey, s) {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***"
}
