package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{"matrix.org"}, nil)
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if cfg.App.Server != "matrix.org" {
		t.Fatalf("unexpected server %q", cfg.App.Server)
	}
	if cfg.App.SessionPath != defaultSessionPath {
		t.Fatalf("expected default session path, got %q", cfg.App.SessionPath)
	}
	if cfg.Logging.Trace || cfg.App.Proxy != "" || cfg.App.Width != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadArgsFlagsAndPositionals(t *testing.T) {
	args := []string{"--proxy", "http://127.0.0.1:8080", "--trace", "--width", "120", "--metrics-addr", ":9090", "https://hs.example", "/var/lib/mv"}
	cfg, err := LoadArgs(args, nil)
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if cfg.App.Server != "https://hs.example" || cfg.App.SessionPath != "/var/lib/mv" {
		t.Fatalf("unexpected positionals %+v", cfg.App)
	}
	if cfg.App.Proxy != "http://127.0.0.1:8080" || !cfg.Logging.Trace || cfg.App.Width != 120 || cfg.App.MetricsAddr != ":9090" {
		t.Fatalf("unexpected flags %+v", cfg)
	}
	if cfg.Flags["width"] != "120" || cfg.Flags["trace"] != "true" {
		t.Fatalf("unexpected flag map %v", cfg.Flags)
	}
	if len(cfg.Args) != len(args) {
		t.Fatalf("expected args to be kept")
	}
}

func TestLoadArgsEnvironment(t *testing.T) {
	env := []string{
		"PROXY=http://proxy:3128",
		"MULTIVERSE_TRACE=1",
		"MULTIVERSE_HEIGHT=30",
		"MULTIVERSE_LOG_FILE=/tmp/mv.log",
	}
	cfg, err := LoadArgs([]string{"hs"}, env)
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if cfg.App.Proxy != "http://proxy:3128" || !cfg.Logging.Trace || cfg.App.Height != 30 || cfg.Logging.FilePath != "/tmp/mv.log" {
		t.Fatalf("environment not applied: %+v", cfg)
	}

	cfg, err = LoadArgs([]string{"--proxy", "http://flag:1", "hs"}, env)
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if cfg.App.Proxy != "http://flag:1" {
		t.Fatalf("flag should win over environment, got %q", cfg.App.Proxy)
	}
}

func TestLoadArgsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multiverse.toml")
	content := strings.Join([]string{
		`server = "file.example"`,
		`session_path = "/srv/mv"`,
		`sliding_sync_proxy = "https://ss.file.example"`,
		`trace = true`,
		`width = 100`,
		`otlp_url = "http://collector:4318"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadArgs([]string{"--config", path}, []string{"MULTIVERSE_WIDTH=80"})
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if cfg.File != path {
		t.Fatalf("expected config file to be recorded, got %q", cfg.File)
	}
	if cfg.App.Server != "file.example" || cfg.App.SessionPath != "/srv/mv" {
		t.Fatalf("file positionals not applied: %+v", cfg.App)
	}
	if cfg.App.SlidingSyncProxy != "https://ss.file.example" || !cfg.Logging.Trace || cfg.App.OTLPURL != "http://collector:4318" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.App.Width != 80 {
		t.Fatalf("environment should win over the file, got %d", cfg.App.Width)
	}

	cfg, err = LoadArgs([]string{"hs.cli"}, []string{"MULTIVERSE_CONFIG=" + path})
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if cfg.App.Server != "hs.cli" || cfg.App.Width != 100 {
		t.Fatalf("unexpected layering %+v", cfg.App)
	}
}

func TestLoadArgsRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"--width", "-1", "hs"},
		{"--bogus"},
		{"hs", "/tmp", "extra"},
		{"--config", "/nonexistent/multiverse.toml", "hs"},
	}
	for _, args := range cases {
		if _, err := LoadArgs(args, nil); err == nil {
			t.Fatalf("expected %v to fail", args)
		}
	}
	if _, err := LoadArgs([]string{"hs"}, []string{"MULTIVERSE_HEIGHT=tall"}); err == nil {
		t.Fatalf("expected a bad height to fail")
	}
}

func TestValidateRequiresServer(t *testing.T) {
	cfg, err := LoadArgs(nil, nil)
	if err != nil {
		t.Fatalf("LoadArgs: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected a missing server to fail validation")
	}
}
