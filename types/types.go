package types

import "time"

// Check status values
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// SheetInfo describes the spreadsheet GOOGLE_SHEETS_ID points at
type SheetInfo struct {
	SpreadsheetID string   `json:"spreadsheet_id"`
	Title         string   `json:"title"`
	Tabs          []string `json:"tabs"`
}

// ScriptInfo describes the response of the Apps Script web app
type ScriptInfo struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	FinalURL    string `json:"final_url,omitempty"`
}

// CheckResult is the outcome of one setup check
type CheckResult struct {
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// CheckReport is the outcome of a full setup check run
type CheckReport struct {
	Success   bool          `json:"success"`
	StartedAt time.Time     `json:"started_at"`
	Duration  float64       `json:"duration"`
	Checks    []CheckResult `json:"checks"`
	Sheet     *SheetInfo    `json:"sheet,omitempty"`
	Script    *ScriptInfo   `json:"script,omitempty"`
	Invalid   []string      `json:"invalid_keys,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// CheckRequest is the body of POST /run/check
type CheckRequest struct {
	Offline bool `json:"offline"`
}

// ScriptCall is the JSON envelope posted to the Apps Script web app
type ScriptCall struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}
