package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"CHROMIUM_CDP_ADDRESS", "CHROMIUM_CDP_PORT", "TABWARDEN_BIND_ADDR",
		"TABWARDEN_CLASSIFIER_URL", "TABWARDEN_HTTP_TIMEOUT_MS", "TABWARDEN_EVAL_TIMEOUT_MS",
		"TABWARDEN_VISIT_DIR", "TABWARDEN_NTFY_ENDPOINT", "TABWARDEN_LAUNCH_BROWSER",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.CDPURL(), "http://127.0.0.1:9220"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if got, want := cfg.BindAddr, "127.0.0.1:8190"; got != want {
		t.Fatalf("BindAddr = %q; want %q", got, want)
	}
	if got, want := cfg.ClassifierURL, "http://127.0.0.1:8000"; got != want {
		t.Fatalf("ClassifierURL = %q; want %q", got, want)
	}
	if got, want := cfg.HTTPTimeout(), 10*time.Second; got != want {
		t.Fatalf("HTTPTimeout() = %v; want %v", got, want)
	}
	if got, want := cfg.VisitDir, "./visits"; got != want {
		t.Fatalf("VisitDir = %q; want %q", got, want)
	}
	if cfg.LaunchBrowser || cfg.NtfyEndpoint != "" {
		t.Fatalf("optional features enabled by default: %+v", cfg)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("TABWARDEN_CLASSIFIER_URL", "http://ml.local:9000/")
	t.Setenv("TABWARDEN_HTTP_TIMEOUT_MS", "10")
	t.Setenv("TABWARDEN_EVAL_TIMEOUT_MS", "nope")
	t.Setenv("TABWARDEN_VISIT_DIR", "")
	t.Setenv("TABWARDEN_LAUNCH_BROWSER", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d; want 9333", cfg.CDPPort)
	}
	if got, want := cfg.ClassifierURL, "http://ml.local:9000"; got != want {
		t.Fatalf("ClassifierURL = %q; want %q", got, want)
	}
	if cfg.HTTPTimeoutMS != 1000 {
		t.Fatalf("HTTPTimeoutMS = %d; want clamped to 1000", cfg.HTTPTimeoutMS)
	}
	if cfg.EvalTimeoutMS != 5000 {
		t.Fatalf("EvalTimeoutMS = %d; want default on parse error", cfg.EvalTimeoutMS)
	}
	if cfg.VisitDir != "" {
		t.Fatalf("VisitDir = %q; want disabled", cfg.VisitDir)
	}
	if !cfg.LaunchBrowser {
		t.Fatal("LaunchBrowser = false; want true")
	}
}

func TestIgnoreRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignore.yaml")
	if err := os.WriteFile(path, []byte("prefixes:\n  - https://intranet.local/\ncontains:\n  - /calendar\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	rules, err := LoadIgnoreRules(path)
	if err != nil {
		t.Fatalf("LoadIgnoreRules() error = %v", err)
	}
	tests := []struct {
		url  string
		want bool
	}{
		{"chrome://settings", true},
		{"devtools://devtools/bundled/inspector.html", true},
		{"about:blank", true},
		{"chrome-extension://abc/popup.html", true},
		{"https://intranet.local/wiki", true},
		{"https://mail.example/calendar", true},
		{"https://www.youtube.com/watch?v=x", false},
	}
	for _, tt := range tests {
		if got := rules.Ignored(tt.url); got != tt.want {
			t.Fatalf("Ignored(%q) = %v; want %v", tt.url, got, tt.want)
		}
	}
}

func TestLoadIgnoreRulesMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	rules, err := LoadIgnoreRules(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadIgnoreRules(missing) error = %v", err)
	}
	if len(rules.Prefixes) != len(DefaultIgnorePrefixes) {
		t.Fatalf("prefixes = %v; want defaults", rules.Prefixes)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("prefixes:\n  - \"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadIgnoreRules(bad); err == nil {
		t.Fatal("LoadIgnoreRules(empty prefix) error = nil")
	}
}
