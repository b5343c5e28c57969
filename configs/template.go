package configs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	ignore "github.com/sabhiram/go-gitignore"
)

const (
	// TemplateFileName is the committed variant holding placeholders.
	TemplateFileName = "config.example.env"
	// RuntimeFileName is the variant loaded at runtime. It must stay out of version control.
	RuntimeFileName = "config.env"
)

var (
	// ErrSameFileName is returned when the template and runtime files would share a name.
	ErrSameFileName = errors.New("template and runtime file names must differ")
	// ErrExists is returned when InitRuntime would overwrite an existing runtime file.
	ErrExists = errors.New("runtime config already exists")
)

var fieldComments = map[string][]string{
	KeyGoogleAPIKey: {
		"Google Sheets Configuration",
		"Get your API key from: https://console.cloud.google.com/apis/credentials",
	},
	KeyGoogleSheetsID: {
		"Your Google Sheets ID (found in the spreadsheet URL)",
		"Example: https://docs.google.com/spreadsheets/d/{SHEETS_ID}/edit",
	},
	KeyAppsScriptURL: {
		"Your deployed Google Apps Script URL",
		"Deploy from: https://script.google.com/",
	},
}

var securityNotes = []string{
	"Security Notes:",
	"1. Restrict your API key in Google Cloud Console to:",
	"   - HTTP referrers (your domain only)",
	"   - Google Sheets API only",
	"   - Set daily quota limits",
	"2. Keep " + RuntimeFileName + " in .gitignore",
	"3. Never share your API credentials publicly",
}

// RenderTemplate returns the dotenv text of the distributed template.
func RenderTemplate() []byte {
	var buf bytes.Buffer
	buf.WriteString("# Configuration Template for Alphadip Tracker\n")
	fmt.Fprintf(&buf, "# Copy this file to %s and fill in your actual credentials\n", RuntimeFileName)
	fmt.Fprintf(&buf, "# NEVER commit %s to version control!\n", RuntimeFileName)

	fields := Template().Fields()
	for _, key := range Keys() {
		buf.WriteString("\n")
		for _, line := range fieldComments[key] {
			buf.WriteString("# " + line + "\n")
		}
		fmt.Fprintf(&buf, "%s=%s\n", key, fields[key])
	}

	buf.WriteString("\n")
	for _, line := range securityNotes {
		buf.WriteString("# " + line + "\n")
	}
	return buf.Bytes()
}

// CheckFileNames rejects a template/runtime pair with the same base name.
func CheckFileNames(templatePath, runtimePath string) error {
	if filepath.Base(templatePath) == filepath.Base(runtimePath) {
		return fmt.Errorf("%s vs %s: %w", templatePath, runtimePath, ErrSameFileName)
	}
	return nil
}

// WriteTemplate atomically writes the template to path.
func WriteTemplate(path string) error {
	if err := CheckFileNames(path, RuntimeFileName); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, RenderTemplate(), 0o644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}

// InitRuntime copies the template at templatePath to runtimePath so it can be
// edited in place. The runtime file is written owner-only.
func InitRuntime(templatePath, runtimePath string, force bool) error {
	if err := CheckFileNames(templatePath, runtimePath); err != nil {
		return err
	}

	content, err := os.ReadFile(templatePath)
	if errors.Is(err, os.ErrNotExist) {
		content = RenderTemplate()
	} else if err != nil {
		return fmt.Errorf("read template: %w", err)
	}

	if !force {
		if _, err := os.Stat(runtimePath); err == nil {
			return fmt.Errorf("%s: %w", runtimePath, ErrExists)
		}
	}

	if err := renameio.WriteFile(runtimePath, content, 0o600); err != nil {
		return fmt.Errorf("write runtime config: %w", err)
	}
	return nil
}

// IsGitIgnored reports whether a .gitignore excludes path. Every .gitignore
// from the file's directory up to the repository root (the first directory
// holding .git) is consulted, each matched relative to its own directory.
func IsGitIgnored(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", path, err)
	}

	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		rules, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
		switch {
		case err == nil:
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return false, fmt.Errorf("resolve %s: %w", path, err)
			}
			if rules.MatchesPath(filepath.ToSlash(rel)) {
				return true, nil
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return false, fmt.Errorf("read .gitignore in %s: %w", dir, err)
		}

		if isRepoRoot(dir) || filepath.Dir(dir) == dir {
			return false, nil
		}
	}
}

func isRepoRoot(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
