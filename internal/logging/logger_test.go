package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewLogger_UsesJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "debug", Writer: &buf, Component: "vibeflow"})
	lg.Debug("boot", "k", "v")

	out := strings.TrimSpace(buf.String())
	if !strings.Contains(out, `"level":"DEBUG"`) {
		t.Fatalf("expected DEBUG level, got %s", out)
	}
	if !strings.Contains(out, `"component":"vibeflow"`) {
		t.Fatalf("expected component field, got %s", out)
	}
}

func TestNewLogger_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "bogus", Writer: &buf})
	lg.Debug("hidden")
	lg.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Fatalf("expected WARN record, got %s", out)
	}
	if strings.Contains(out, `"component"`) {
		t.Fatalf("component should be omitted when empty: %s", out)
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "info", Format: "TEXT", Writer: &buf, Component: "router"})
	lg.Info("claimed", "key", "t1")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected text record, got %s", out)
	}
	if !strings.Contains(out, "component=router") || !strings.Contains(out, "key=t1") {
		t.Fatalf("expected key=value attrs, got %s", out)
	}
}

func TestNop_DropsEverything(t *testing.T) {
	lg := Nop()
	if lg.Enabled(context.Background(), ParseLevel("error")) {
		t.Fatal("nop logger should not enable error records")
	}
}
