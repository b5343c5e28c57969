package configs

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var sheetsIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)

func validSheetsID(id string) bool {
	return sheetsIDPattern.MatchString(id)
}

// ExtractSheetsID accepts a bare spreadsheet ID or a spreadsheet URL such as
// https://docs.google.com/spreadsheets/d/{SHEETS_ID}/edit and returns the ID.
func ExtractSheetsID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("extract sheets id: %w", ErrMissing)
	}
	if isPlaceholder(KeyGoogleSheetsID, s) {
		return "", fmt.Errorf("extract sheets id: %w", ErrPlaceholder)
	}
	if validSheetsID(s) {
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("extract sheets id from %q: %w", s, ErrInvalid)
	}
	if !strings.EqualFold(u.Hostname(), "docs.google.com") {
		return "", fmt.Errorf("extract sheets id: host %q is not docs.google.com: %w", u.Hostname(), ErrInvalid)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(segments); i++ {
		if segments[i] == "spreadsheets" && segments[i+1] == "d" {
			id := segments[i+2]
			if validSheetsID(id) {
				return id, nil
			}
			break
		}
	}
	return "", fmt.Errorf("extract sheets id: no /spreadsheets/d/{id} segment in %q: %w", u.Path, ErrInvalid)
}
