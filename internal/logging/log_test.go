package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Hussein-Mazeh/secretvault/internal/config"
)

func TestVerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.Logging{Level: "error"}, true, &buf)
	l.Debug().Str("op", "unlock").Msg("deriving key")
	if !strings.Contains(buf.String(), `"op":"unlock"`) {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}

func TestConfiguredLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.Logging{Level: "warn"}, false, &buf)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBadLevelFallsBackToWarn(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.Logging{Level: "loud"}, false, &buf)
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
}
