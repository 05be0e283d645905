package logs

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"startup-positioning-map/config"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for raw, want := range cases {
		if got := levelFromString(raw); got != want {
			t.Fatalf("levelFromString(%q)=%v want %v", raw, got, want)
		}
	}
}

func TestNewLogger_ConsoleAndJSON(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"console", "json"} {
		l, err := NewLogger(&config.Config{LogLevel: "debug", LogFormat: format})
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", format, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("expected debug level enabled for %s", format)
		}
	}
}
