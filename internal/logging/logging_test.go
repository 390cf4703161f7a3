package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestTraceWritesOnlyWhenEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trace.log")
	Configure(path)
	t.Cleanup(func() {
		Configure("")
		SetTraceEnabled(false)
	})

	SetTraceEnabled(false)
	Trace("room.skip", nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no log file while tracing disabled, got %v", err)
	}

	SetTraceEnabled(true)
	Trace("room.subscribe", map[string]interface{}{"room": "!a:example.org"})
	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected one entry, got %d", len(lines))
	}
	entry := gjson.Parse(lines[0])
	if entry.Get("event").String() != "room.subscribe" {
		t.Fatalf("unexpected event field: %s", lines[0])
	}
	if entry.Get("payload.room").String() != "!a:example.org" {
		t.Fatalf("unexpected payload: %s", lines[0])
	}
	if !entry.Get("time").Exists() {
		t.Fatalf("expected timestamp: %s", lines[0])
	}
}

func TestErrorIgnoresNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	Configure(path)
	t.Cleanup(func() { Configure("") })

	Error(nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected nil error to be ignored")
	}
	Error(errors.New("boom"))
	lines := readLines(t, path)
	entry := gjson.Parse(lines[len(lines)-1])
	if entry.Get("level").String() != "error" || entry.Get("error").String() != "boom" {
		t.Fatalf("unexpected entry %s", lines[len(lines)-1])
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "component.log")
	Configure(path)
	t.Cleanup(func() { Configure("") })

	l := Logger("sync")
	l.Info().Msg("started")
	lines := readLines(t, path)
	if gjson.Get(lines[0], "component").String() != "sync" {
		t.Fatalf("expected component tag, got %s", lines[0])
	}
}

func TestConfigureFallsBackToDefault(t *testing.T) {
	Configure("   ")
	if Path() != defaultLogFile {
		t.Fatalf("expected default path, got %q", Path())
	}
}
