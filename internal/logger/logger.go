package logger

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	json   bool
	writer *zap.Logger
}

type Option func(*options)

type options struct {
	out     io.Writer
	verbose bool
}

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithVerbose enables Debug output.
func WithVerbose(v bool) Option { return func(o *options) { o.verbose = v } }

func New(jsonOutput bool, opts ...Option) *Logger {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			MessageKey:     "msg",
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			LineEnding:     zapcore.DefaultLineEnding,
		})
	} else {
		enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			LevelKey:       "level",
			MessageKey:     "msg",
			EncodeLevel:    bracketLevel,
			EncodeDuration: zapcore.StringDurationEncoder,
			LineEnding:     zapcore.DefaultLineEnding,
		})
	}

	level := zapcore.InfoLevel
	if o.verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(o.out)), level)
	return &Logger{json: jsonOutput, writer: zap.New(core)}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{writer: zap.NewNop()}
}

func bracketLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func (l *Logger) log(level zapcore.Level, msg string, fields map[string]any) {
	if ce := l.writer.Check(level, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

// zapFields sorts keys so console output is stable.
func zapFields(fields map[string]any) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(zapcore.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(zapcore.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(zapcore.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.log(zapcore.ErrorLevel, msg, fields) }

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{json: l.json, writer: l.writer.With(zapFields(fields)...)}
}

// JSONEnabled reports whether this logger is configured to emit JSON output.
func (l *Logger) JSONEnabled() bool { return l.json }

func (l *Logger) Sync() error { return l.writer.Sync() }
