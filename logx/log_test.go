package logx_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/logx"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"all":      zerolog.TraceLevel,
		"WARNING":  zerolog.WarnLevel,
		" debug ":  zerolog.DebugLevel,
		"none":     zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
		"disabled": zerolog.Disabled,
	}
	for in, want := range cases {
		if got := logx.ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewWriterFilters(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked through warn filter: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestConsoleWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWriter(logx.Console(&buf, false), "info")
	log.Warn().Str("stderr", "x").Msg("plain")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("ANSI escape in uncolored output: %q", out)
	}
	if !strings.Contains(out, "plain") {
		t.Fatalf("message missing: %q", out)
	}

	buf.Reset()
	logx.NewWriter(logx.Console(&buf, true), "info").Warn().Msg("colored")
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI escapes in colored output: %q", buf.String())
	}
}
