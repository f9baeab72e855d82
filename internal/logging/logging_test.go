package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level    string
		format   string
		want     zapcore.Level
		encoding string
	}{
		{level: "", format: "", want: zapcore.InfoLevel, encoding: "json"},
		{level: "DEBUG", format: "console", want: zapcore.DebugLevel, encoding: "console"},
		{level: "warn", format: "json", want: zapcore.WarnLevel, encoding: "json"},
	}
	for _, tc := range cases {
		config, err := Config(tc.level, tc.format)
		if err != nil {
			t.Fatalf("Config(%q, %q) returned error: %v", tc.level, tc.format, err)
		}
		if got := config.Level.Level(); got != tc.want {
			t.Fatalf("Config(%q): level %v, want %v", tc.level, got, tc.want)
		}
		if config.Encoding != tc.encoding {
			t.Fatalf("Config(%q): encoding %q, want %q", tc.format, config.Encoding, tc.encoding)
		}
	}

	if _, err := Config("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewBuildsLogger(t *testing.T) {
	t.Parallel()

	logger, err := New("error", "json")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at error level")
	}
}
