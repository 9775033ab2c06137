package sysutil

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := map[string]struct {
		in   string
		want zerolog.Level
	}{
		"debug":           {"debug", zerolog.DebugLevel},
		"case and spaces": {"  WaRn  ", zerolog.WarnLevel},
		"warning alias":   {"warning", zerolog.WarnLevel},
		"info":            {"info", zerolog.InfoLevel},
		"empty":           {"", zerolog.InfoLevel},
		"error":           {"error", zerolog.ErrorLevel},
		"fatal":           {"fatal", zerolog.FatalLevel},
		"panic":           {"panic", zerolog.PanicLevel},
		"unknown":         {"verbose", zerolog.InfoLevel},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			SetLogLevel(tc.in)
			if got := zerolog.GlobalLevel(); got != tc.want {
				t.Fatalf("SetLogLevel(%q) set %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		if !IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off", "  ", "da"} {
		if IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = true, want false", v)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty(); got != "" {
		t.Errorf("no args: got %q", got)
	}
	if got := FirstNonEmpty(" ", "\t"); got != "" {
		t.Errorf("only blanks: got %q", got)
	}
	// The winning value keeps its original spacing.
	if got := FirstNonEmpty("", "  b  ", "c"); got != "  b  " {
		t.Errorf("got %q, want %q", got, "  b  ")
	}
	if got := FirstNonEmpty("a", "b"); got != "a" {
		t.Errorf("got %q, want a", got)
	}
}
