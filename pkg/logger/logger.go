// Package logger builds the zap loggers used across thinkgate.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	// FormatConsole is the colorized, human-friendly encoder used by the CLI.
	FormatConsole Format = "console"

	// FormatJSON emits one JSON object per line for log shippers.
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value onto a Format. The empty string is console.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatConsole, "":
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want %q or %q)", s, FormatConsole, FormatJSON)
	}
}

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	debug   bool
	format  Format
	writers []io.Writer
}

// WithDebug enables debug level output.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithFormat selects the encoder.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithWriters fans log output out to every writer. Defaults to os.Stdout.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) {
		o.writers = w
	}
}

// New builds a logger from opts.
func New(opts ...Option) *zap.Logger {
	o := &options{format: FormatConsole}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.writers) == 0 {
		o.writers = []io.Writer{os.Stdout}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if o.format == FormatJSON {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.InfoLevel
	if o.debug {
		level = zap.DebugLevel
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(o.writers))
	for _, w := range o.writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	return zap.New(core, zap.AddCaller())
}

// NewLogger is the console logger used by interactive commands.
func NewLogger(debug bool) *zap.Logger {
	return New(WithDebug(debug))
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
