package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// 配置文件写console或stdout都要点亮控制台输出
func TestConsoleEnabled(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"stdout", true},
		{"console", true},
		{"both", true},
		{"file", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := consoleEnabled(tt.output); got != tt.want {
			t.Errorf("consoleEnabled(%q) = %v，期望%v", tt.output, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v，期望%v", tt.in, got, tt.want)
		}
	}
}
