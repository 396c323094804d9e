package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := New(WithWriter(&buf))
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	l.Info(context.Background(), "test message", String("k", "v"), Int64("n", 7))
	out := buf.String()
	if !strings.Contains(out, "test message") || !strings.Contains(out, "k=v") || !strings.Contains(out, "n=7") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Fatalf("expected caller source in output: %q", out)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := New(WithWriter(&buf), WithLevel("warn"))
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level not applied: %q", buf.String())
	}

	if _, _, err := New(WithLevel("loud")); err == nil {
		t.Fatal("expected unknown level to fail")
	}
}

func TestLoggerJSONAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "shillbot.log")
	l, closer, err := New(WithWriter(&buf), WithFormat("json"), WithFile(path, 1, 1, 1))
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	l.Named("settlement").Error(context.Background(), "boom", Bool("fatal", false))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"settlement"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "boom") {
		t.Fatalf("file sink missing entry: %q", data)
	}
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}
	namedLogger.Info(context.Background(), "test message")
	Discard().Error(context.Background(), "dropped")
}
