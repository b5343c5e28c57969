package tasks

import (
	"errors"
	"strings"
	"testing"
	"time"

	"alphadip-config/types"
)

func TestGroupByRun(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return base.Add(time.Duration(s) * time.Second) }

	// Deliberately out of order; Cloud Logging returns newest first.
	entries := []LogEntry{
		{Timestamp: at(65), Pipeline: "setup", Message: "pipeline failed", Error: "check_sheet: spreadsheet not found"},
		{Timestamp: at(64), Pipeline: "setup", Step: "check_sheet", Message: "step failed", Error: "spreadsheet not found"},
		{Timestamp: at(63), Pipeline: "setup", Step: "check_apps_script", Message: "step completed", Duration: 0.4},
		{Timestamp: at(61), Pipeline: "setup", Step: "validate_config", Message: "step completed"},
		{Timestamp: at(60), Pipeline: "setup", Message: "pipeline started"},
		{Timestamp: at(3), Pipeline: "setup", Message: "pipeline completed"},
		{Timestamp: at(2), Pipeline: "setup", Step: "check_sheet", Message: "step skipped"},
		{Timestamp: at(1), Pipeline: "setup", Step: "validate_config", Message: "step completed"},
		{Timestamp: at(0), Pipeline: "setup", Message: "pipeline started"},
		{Timestamp: at(5), Message: "server started"},
	}

	runs := GroupByRun(entries, "proj", "alphadip-config")
	if len(runs) != 2 {
		t.Fatalf("GroupByRun() returned %d runs, want 2", len(runs))
	}

	latest, first := runs[0], runs[1]
	if !latest.StartTime.Equal(at(60)) {
		t.Errorf("runs not newest first: %v", latest.StartTime)
	}
	if latest.Success {
		t.Error("latest run Success = true, want false")
	}
	if latest.Error != "spreadsheet not found" {
		t.Errorf("latest Error = %q", latest.Error)
	}
	if len(latest.Checks) != 3 {
		t.Fatalf("latest Checks = %d, want 3", len(latest.Checks))
	}
	if latest.Checks[2].Status != types.StatusFailed {
		t.Errorf("check_sheet status = %q, want failed", latest.Checks[2].Status)
	}
	if !latest.EndTime.Equal(at(65)) {
		t.Errorf("EndTime = %v, want %v", latest.EndTime, at(65))
	}

	if !first.Success {
		t.Error("first run Success = false, want true")
	}
	if len(first.Checks) != 2 || first.Checks[1].Status != types.StatusSkipped {
		t.Errorf("first run checks = %+v", first.Checks)
	}
	if !strings.Contains(first.LogsURL, "project=proj") {
		t.Errorf("LogsURL = %q, want project param", first.LogsURL)
	}
}

func TestGroupByRun_ImplicitStart(t *testing.T) {
	entries := []LogEntry{
		{Timestamp: time.Unix(10, 0), Pipeline: "setup", Step: "validate_config", Message: "step completed"},
	}

	runs := GroupByRun(entries, "proj", "svc")
	if len(runs) != 1 || len(runs[0].Checks) != 1 {
		t.Fatalf("GroupByRun() = %+v, want one implicit run with one check", runs)
	}
}

func TestGroupByRun_Empty(t *testing.T) {
	if runs := GroupByRun(nil, "proj", "svc"); runs != nil {
		t.Errorf("GroupByRun(nil) = %v, want nil", runs)
	}
}

func TestBuildFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	filter := buildFilter("alphadip-config", LogQuery{Since: time.Hour, Severity: "ERROR", Pipeline: "setup"}, now)

	for _, want := range []string{
		`resource.labels.service_name="alphadip-config"`,
		`timestamp>="2026-03-01T11:00:00Z"`,
		`severity>=ERROR`,
		`jsonPayload.pipeline="setup"`,
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter %q missing %q", filter, want)
		}
	}
}

func TestBuildFilter_QuotesValues(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	filter := buildFilter("alphadip-config", LogQuery{
		Since:    time.Hour,
		Severity: `ERROR" OR severity>="DEBUG`,
		Pipeline: `x" OR resource.type!="none`,
	}, now)

	want := `jsonPayload.pipeline="x\" OR resource.type!=\"none"`
	if !strings.HasSuffix(filter, want) {
		t.Errorf("filter = %q, want suffix %q", filter, want)
	}
	if strings.Contains(filter, "severity>=") {
		t.Errorf("filter %q kept an unknown severity", filter)
	}
	if strings.Count(filter, " OR ") != 1 {
		t.Errorf("filter %q has an unquoted OR", filter)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "error", want: "ERROR"},
		{in: " Warning ", want: "WARNING"},
		{in: "DEFAULT", want: "DEFAULT"},
		{in: "EMERGENCY", want: "EMERGENCY"},
		{in: "LOUD", wantErr: true},
		{in: `ERROR" OR "1"="1`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeSeverity(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrBadSeverity) {
				t.Errorf("NormalizeSeverity(%q) error = %v, want ErrBadSeverity", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeSeverity(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePayload(t *testing.T) {
	var le LogEntry
	parsePayload(&le, map[string]interface{}{
		"msg":      "step failed",
		"pipeline": "setup",
		"step":     "check_sheet",
		"error":    "boom",
		"duration": 1.5,
	})

	if le.Message != "step failed" || le.Pipeline != "setup" || le.Step != "check_sheet" || le.Error != "boom" || le.Duration != 1.5 {
		t.Errorf("parsePayload() = %+v", le)
	}
}
