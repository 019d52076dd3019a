package log

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelMap(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := getLoggerLevel(tt.in); got != tt.want {
				t.Fatalf("getLoggerLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", zap.Int("pc", 4))
	_ = l.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked through warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"pc":4`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("warn")
	SetLevel("debug")
	if !atom.Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be enabled")
	}
	Debugf("pc=%d", 3)
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := Nop()
	if OrNop(l) != l {
		t.Fatal("OrNop should return its argument")
	}
}
