package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphadip-config/configs"
	"alphadip-config/pipelines"
	"alphadip-config/tasks"
	"alphadip-config/types"
)

const (
	testAPIKey    = "AIzaSyA1b2C3d4E5f6G7h8I9j0KlMnOpQrStUv"
	testSheetsID  = "1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms"
	testScriptURL = "https://script.google.com/macros/s/AKfycbx123abc/exec"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeRuntime(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, configs.RuntimeFileName)
	content := "GOOGLE_API_KEY=" + testAPIKey + "\n" +
		"GOOGLE_SHEETS_ID=" + testSheetsID + "\n" +
		"APPS_SCRIPT_URL=" + testScriptURL + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeTemplateCopy(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, configs.RuntimeFileName)
	require.NoError(t, os.WriteFile(path, configs.RenderTemplate(), 0o600))
	return path
}

func TestTemplate(t *testing.T) {
	code, out, _ := runCLI(t, "template", "-o", "-")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, string(configs.RenderTemplate()), out)

	path := filepath.Join(t.TempDir(), configs.TemplateFileName)
	code, _, _ = runCLI(t, "template", "-o", path)
	require.Equal(t, exitOK, code)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.RenderTemplate(), got)
}

func TestTemplate_RefusesRuntimeName(t *testing.T) {
	path := filepath.Join(t.TempDir(), configs.RuntimeFileName)
	code, _, errOut := runCLI(t, "template", "-o", path)

	assert.Equal(t, exitFailed, code)
	assert.Contains(t, errOut, configs.ErrSameFileName.Error())
	assert.NoFileExists(t, path)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, configs.TemplateFileName)
	out := filepath.Join(dir, configs.RuntimeFileName)
	require.NoError(t, os.WriteFile(tmpl, configs.RenderTemplate(), 0o644))

	code, stdout, stderr := runCLI(t, "init", "--template", tmpl, "--out", out)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Created "+out)
	assert.Contains(t, stderr, "not in .gitignore")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, configs.RenderTemplate(), got)

	code, _, stderr = runCLI(t, "init", "--template", tmpl, "--out", out)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "--force")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(configs.RuntimeFileName+"\n"), 0o644))
	code, _, stderr = runCLI(t, "init", "--template", tmpl, "--out", out, "--force")
	assert.Equal(t, exitOK, code)
	assert.NotContains(t, stderr, "Warning")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	code, out, _ := runCLI(t, "validate", "-f", writeTemplateCopy(t, dir))
	assert.Equal(t, exitFailed, code)
	for _, key := range configs.Keys() {
		assert.Contains(t, out, key)
	}

	code, out, _ = runCLI(t, "validate", "-f", writeRuntime(t, dir))
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "is valid")
}

func TestValidate_Errors(t *testing.T) {
	code, _, _ := runCLI(t, "validate", "-f", filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, exitFailed, code)

	code, _, stderr := runCLI(t, "validate", "--bogus")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown flag")
}

func TestShow(t *testing.T) {
	code, out, _ := runCLI(t, "show", "-f", writeRuntime(t, t.TempDir()))

	require.Equal(t, exitOK, code)
	assert.NotContains(t, out, testAPIKey)
	assert.Contains(t, out, `"GOOGLE_API_KEY": "AIza***"`)
	assert.Contains(t, out, testSheetsID)
}

func TestExtractID(t *testing.T) {
	code, out, _ := runCLI(t, "extract-id", "https://docs.google.com/spreadsheets/d/"+testSheetsID+"/edit#gid=0")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, testSheetsID+"\n", out)

	code, _, _ = runCLI(t, "extract-id", "https://example.com/nothing")
	assert.Equal(t, exitFailed, code)

	code, _, _ = runCLI(t, "extract-id")
	assert.Equal(t, exitUsage, code)
}

func TestCheck_Offline(t *testing.T) {
	dir := t.TempDir()

	code, out, _ := runCLI(t, "check", "--offline", "-f", writeRuntime(t, dir))
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "validate_config    PASSED")
	assert.Contains(t, out, "check_sheet        SKIPPED")

	code, out, _ = runCLI(t, "check", "--offline", "-f", writeTemplateCopy(t, dir))
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "Fix in")
}

func TestCheck_BlankAPIKeyReportsInvalidKey(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/nonexistent.json")
	path := filepath.Join(t.TempDir(), configs.RuntimeFileName)
	content := "GOOGLE_API_KEY=\n" +
		"GOOGLE_SHEETS_ID=" + testSheetsID + "\n" +
		"APPS_SCRIPT_URL=" + testScriptURL + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	code, out, stderr := runCLI(t, "check", "-f", path)
	assert.Equal(t, exitFailed, code)
	assert.Empty(t, stderr)
	assert.Contains(t, out, "validate_config    FAILED")
	assert.Contains(t, out, "Fix in "+path+": "+configs.KeyGoogleAPIKey)
}

type stubSheets struct{ err error }

func (s stubSheets) Describe(ctx context.Context) (*types.SheetInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.SheetInfo{SpreadsheetID: testSheetsID, Title: "Alphadip", Tabs: []string{"Entries", "Summary"}}, nil
}

type stubScript struct{}

func (stubScript) Ping(ctx context.Context) (*types.ScriptInfo, error) {
	return &types.ScriptInfo{StatusCode: http.StatusOK}, nil
}

func stubState(t *testing.T, sheetsErr error) {
	t.Helper()
	orig := newState
	newState = func(ctx context.Context, cfg configs.Config, offline bool, timeout time.Duration) (*pipelines.State, error) {
		return &pipelines.State{
			Config: cfg,
			Sheets: stubSheets{err: sheetsErr},
			Script: stubScript{},
		}, nil
	}
	t.Cleanup(func() { newState = orig })
}

func TestCheck(t *testing.T) {
	stubState(t, nil)

	code, out, _ := runCLI(t, "check", "-f", writeRuntime(t, t.TempDir()))
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, `Sheet: "Alphadip" (Entries, Summary)`)
	assert.Contains(t, out, "Apps Script: HTTP 200")
}

func TestCheck_JSON(t *testing.T) {
	stubState(t, tasks.ErrSheetForbidden)

	code, out, _ := runCLI(t, "check", "--json", "-f", writeRuntime(t, t.TempDir()))
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, `"success": false`)
	assert.Contains(t, out, tasks.ErrSheetForbidden.Error())
}

type stubHistory struct {
	runs   []tasks.CheckRun
	err    error
	closed bool
	got    tasks.LogQuery
}

func (s *stubHistory) History(ctx context.Context, q tasks.LogQuery) ([]tasks.CheckRun, error) {
	s.got = q
	return s.runs, s.err
}

func (s *stubHistory) Close() error {
	s.closed = true
	return nil
}

func stubHistoryReader(t *testing.T, h *stubHistory) {
	t.Helper()
	orig := newHistoryReader
	newHistoryReader = func(ctx context.Context, projectID, serviceName string) (historyReader, error) {
		return h, nil
	}
	t.Cleanup(func() { newHistoryReader = orig })
}

func TestHistory(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "")
	code, _, _ := runCLI(t, "history")
	assert.Equal(t, exitUsage, code)

	h := &stubHistory{runs: []tasks.CheckRun{
		{Pipeline: "setup", StartTime: time.Now(), Success: true},
		{Pipeline: "setup", StartTime: time.Now().Add(-time.Hour), Error: "sheet not found"},
	}}
	stubHistoryReader(t, h)

	code, out, _ := runCLI(t, "history", "--project", "demo", "--since", "2h", "--limit", "10")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "sheet not found")
	assert.Equal(t, 2*time.Hour, h.got.Since)
	assert.Equal(t, 10, h.got.Limit)
	assert.True(t, h.closed)

	h.runs, h.err = nil, errors.New("permission denied")
	code, _, stderr := runCLI(t, "history", "--project", "demo")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "permission denied")
}

func TestHistory_RejectsUnknownFilterValues(t *testing.T) {
	h := &stubHistory{}
	stubHistoryReader(t, h)

	code, _, stderr := runCLI(t, "history", "--project", "demo", "--pipeline", `x" OR resource.type!="none`)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown pipeline")

	code, _, stderr = runCLI(t, "history", "--project", "demo", "--severity", "LOUD")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, tasks.ErrBadSeverity.Error())
	assert.False(t, h.closed, "no client is opened for a bad filter")

	code, _, _ = runCLI(t, "history", "--project", "demo", "--severity", "error")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "ERROR", h.got.Severity)
}

func TestPipelinesCmd(t *testing.T) {
	code, out, _ := runCLI(t, "pipelines")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "setup - ")
}

func TestPipelinesCmd_DAG(t *testing.T) {
	code, out, _ := runCLI(t, "pipelines", "--dag", "setup")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "validate_config -> check_apps_script, check_sheet")

	code, _, _ = runCLI(t, "pipelines", "--dag", "missing")
	assert.Equal(t, exitFailed, code)
}
