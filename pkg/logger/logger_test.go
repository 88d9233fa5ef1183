package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"runwayscraper/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{
			name: "valid config with info level",
			cfg: &config.LoggingConfig{
				Level: "info",
			},
			wantErr: false,
		},
		{
			name: "valid config with debug level",
			cfg: &config.LoggingConfig{
				Level: "debug",
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			cfg: &config.LoggingConfig{
				Level: "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestNewWithFileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, err := New(&config.LoggingConfig{Level: "info", File: file})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("New() returned nil logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"fatal", zerolog.FatalLevel, false},
		{"panic", zerolog.PanicLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

// newBufferLogger returns a logger writing JSON lines into buf.
func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zl := zerolog.New(buf).With().Timestamp().Logger()
	return &zerologLogger{
		logger: &zl,
		fields: make(map[string]interface{}),
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := newBufferLogger(&buf)

	tests := []struct {
		name string
		log  func(string)
	}{
		{"Debug", logger.Debug},
		{"Info", logger.Info},
		{"Warn", logger.Warn},
		{"Error", logger.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log("the message")
			if !strings.Contains(buf.String(), "the message") {
				t.Errorf("%s message not found in output", tt.name)
			}
		})
	}
}

func TestWithFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.
		WithField("unit_id", "season/Fall:2024").
		WithFields(map[string]interface{}{
			"worker": 3,
			"retry":  true,
		}).
		Info("unit dispatched")

	output := buf.String()
	for _, want := range []string{
		"unit dispatched",
		`"unit_id":"season/Fall:2024"`,
		`"worker":3`,
		`"retry":true`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.WithField("child", "only")
	logger.Info("parent message")

	if strings.Contains(buf.String(), "child") {
		t.Error("child field leaked into parent logger output")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	if got := logger.WithError(nil); got != Logger(logger) {
		t.Error("WithError(nil) should return the same logger")
	}

	logger.WithError(&testError{msg: "page did not load"}).Error("fetch failed")

	output := buf.String()
	if !strings.Contains(output, "fetch failed") {
		t.Error("message not found in output")
	}
	if !strings.Contains(output, "page did not load") {
		t.Error("error text not found in output")
	}
}

func TestStructuredFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.InfoWithFields("extraction progress", map[string]interface{}{
		"designer":  "Acme Studio",
		"extracted": 7,
		"elapsed":   5 * time.Second,
		"complete":  false,
		"urls":      []string{"a", "b"},
	})

	output := buf.String()
	for _, want := range []string{
		"extraction progress",
		`"designer":"Acme Studio"`,
		`"extracted":7`,
		`"complete":false`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()

	// Every path must be safe to call and stay a nop.
	logger.Debug("ignored")
	logger.WithField("k", "v").WithError(&testError{msg: "x"}).Error("ignored")
	logger.InfoWithFields("ignored", map[string]interface{}{"k": 1})

	if logger.WithFields(nil) != logger {
		t.Error("nop logger should chain to itself")
	}
}

func TestGlobalLogger(t *testing.T) {
	if err := Initialize(&config.LoggingConfig{Level: "debug"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}

	// Convenience functions must not panic.
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
