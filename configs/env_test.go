package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"PORT", "SERVICE_NAME", "HTTP_TIMEOUT", "CHECK_RATE_LIMIT", "WATCH_CONFIG"} {
		unsetenv(t, k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want default %q", cfg.Port, "8080")
	}
	if cfg.ServiceName != "alphadip-config" {
		t.Errorf("ServiceName = %q, want default %q", cfg.ServiceName, "alphadip-config")
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.CheckRateLimit != 10 {
		t.Errorf("CheckRateLimit = %d, want 10", cfg.CheckRateLimit)
	}
	if !cfg.WatchConfig {
		t.Error("WatchConfig = false, want true")
	}
}

func TestLoad_FromRuntimeFile(t *testing.T) {
	path := writeFile(t, RuntimeFileName, validDotenv)
	t.Setenv("CONFIG_FILE", path)
	for _, k := range Keys() {
		unsetenv(t, k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GoogleSheetsID != testSheetsID {
		t.Errorf("GoogleSheetsID = %q, want %q", cfg.GoogleSheetsID, testSheetsID)
	}
	if cfg.AppsScriptURL != testScriptURL {
		t.Errorf("AppsScriptURL = %q, want %q", cfg.AppsScriptURL, testScriptURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeFile(t, RuntimeFileName, validDotenv)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GOOGLE_API_KEY", "AIza-from-environment")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GoogleAPIKey != "AIza-from-environment" {
		t.Errorf("GoogleAPIKey = %q, want value from environment", cfg.GoogleAPIKey)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("HTTP_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for unparsable HTTP_TIMEOUT")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, RuntimeFileName, validDotenv+"UNRELATED=1\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.GoogleAPIKey != testAPIKey {
		t.Errorf("GoogleAPIKey = %q, want %q", cfg.GoogleAPIKey, testAPIKey)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("LoadFile() expected error for missing file")
	}
}

func TestLoadFile_Template(t *testing.T) {
	path := writeFile(t, TemplateFileName, string(RenderTemplate()))

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg != Template() {
		t.Errorf("LoadFile(template) = %+v, want %+v", cfg, Template())
	}
}
