package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Option applies a configuration option to a logger.
type Option func(*options)

type options struct {
	level    string
	format   string
	out      io.Writer
	file     *lumberjack.Logger
	levelVar *slog.LevelVar
}

func defaultOptions() options {
	return options{level: "info", format: "text", out: os.Stdout}
}

// WithLevel sets the minimum level: debug, info, warn or error.
func WithLevel(level string) Option {
	return func(o *options) { o.level = level }
}

// WithFormat selects "text" or "json" output.
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithFile additionally writes to a size-rotated file at path.
func WithFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		if path == "" {
			return
		}
		o.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
	}
}

func withLevelVar(lv *slog.LevelVar) Option {
	return func(o *options) { o.levelVar = lv }
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (o options) writer() (io.Writer, io.Closer) {
	if o.file == nil {
		return o.out, nopCloser{}
	}
	return io.MultiWriter(o.out, o.file), o.file
}
