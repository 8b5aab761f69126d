package pkg

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// captureLog redirects the default logger into a buffer for the duration of
// the test.
func captureLog(t *testing.T, format LogFormat, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	origLevel := GetLogLevel()
	SetLogLevel(level)
	SetLogOutput(&buf, format)
	t.Cleanup(func() {
		SetLogOutput(os.Stderr, LogFormatText)
		SetLogLevel(origLevel)
	})
	return &buf
}

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		t.Run(level.String(), func(t *testing.T) {
			SetLogLevel(level)
			if got := GetLogLevel(); got != level {
				t.Errorf("GetLogLevel() = %v, want %v", got, level)
			}
		})
	}
}

func TestLogComponents(t *testing.T) {
	buf := captureLog(t, LogFormatText, slog.LevelDebug)

	LogDebug(ComponentReset, "debug message", "key", "value")
	LogInfo(ComponentHost, "info message")
	LogWarn(ComponentStack, "warn message")
	LogError(ComponentHAL, "error message")

	output := buf.String()
	for _, want := range []string{
		"debug message", "component=reset", "key=value",
		"info message", "component=host",
		"warn message", "component=stack",
		"error message", "component=hal",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q:\n%s", want, output)
		}
	}
}

func TestLogLevelFilters(t *testing.T) {
	buf := captureLog(t, LogFormatText, slog.LevelWarn)

	LogInfo(ComponentDevice, "hidden")
	LogWarn(ComponentDevice, "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info record emitted at warn level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn record missing: %s", buf.String())
	}
}

func TestSetLogOutputJSON(t *testing.T) {
	buf := captureLog(t, LogFormatJSON, slog.LevelInfo)

	LogInfo(ComponentROM, "json message")
	output := buf.String()
	if !strings.Contains(output, `"msg":"json message"`) {
		t.Errorf("JSON log output missing message: %s", output)
	}
	if !strings.Contains(output, `"component":"rom"`) {
		t.Errorf("JSON log output missing component: %s", output)
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	original := DefaultLogger
	defer SetLogger(original)

	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	LogInfo(ComponentDevice, "custom logger test")
	if !strings.Contains(buf.String(), "custom logger test") {
		t.Error("custom logger not used")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("error = %v, want ErrInvalidParameter", err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	if f, err := ParseLogFormat("json"); err != nil || f != LogFormatJSON {
		t.Errorf("ParseLogFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseLogFormat("Text"); err != nil || f != LogFormatText {
		t.Errorf("ParseLogFormat(Text) = %v, %v", f, err)
	}
	if _, err := ParseLogFormat("xml"); err == nil {
		t.Error("ParseLogFormat(xml) should fail")
	}
	if LogFormatJSON.String() != "json" || LogFormatText.String() != "text" {
		t.Error("LogFormat.String() mismatch")
	}
}
