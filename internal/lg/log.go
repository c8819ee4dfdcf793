package lg

import (
	"bytes"
	"context"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field, aliasing zapcore.Field for flexibility.
type Field = zapcore.Field

func Any(key string, value any) Field            { return zap.Any(key, value) }
func String(key, value string) Field             { return zap.String(key, value) }
func Strings(key string, value []string) Field   { return zap.Strings(key, value) }
func Int(key string, value int) Field            { return zap.Int(key, value) }
func Bool(key string, value bool) Field          { return zap.Bool(key, value) }
func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }
func Err(err error) Field                        { return zap.Error(err) }

// Logger defines the minimal interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

const (
	LevelDebug   = "DEBUG"
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds logging configuration options.
type Config struct {
	ServiceName string
	Level       string // DEBUG, INFO, WARNING or ERROR
	Format      string // "json" or "console"
}

// ParseLevel maps a run-config level name onto a zap level.
// The second return value is false for unknown names.
func ParseLevel(name string) (zapcore.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case LevelDebug:
		return zapcore.DebugLevel, true
	case LevelInfo:
		return zapcore.InfoLevel, true
	case LevelWarning, "WARN":
		return zapcore.WarnLevel, true
	case LevelError:
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// New builds a zap-based Logger based on cfg.
func New(cfg *Config) Logger {
	level, _ := ParseLevel(cfg.Level)

	var baseCfg zap.Config
	if level == zapcore.DebugLevel {
		baseCfg = zap.NewDevelopmentConfig()
	} else {
		baseCfg = zap.NewProductionConfig()
		baseCfg.Sampling = nil
	}

	format := cfg.Format
	if format != FormatJSON {
		format = FormatConsole
		baseCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	baseCfg.Encoding = format
	baseCfg.Level = zap.NewAtomicLevelAt(level)
	baseCfg.OutputPaths = []string{"stdout"}
	baseCfg.EncoderConfig.TimeKey = "timestamp"
	baseCfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	if cfg.ServiceName != "" {
		baseCfg.InitialFields = map[string]any{"service": cfg.ServiceName}
	}

	logger, err := baseCfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.DPanicLevel))
	if err != nil {
		log.Printf("[ERROR] cannot initialize zap logger: %v", err)
		return defaultLogger{}
	}
	return &zapLogger{l: logger}
}

// Wrap adapts an existing *zap.Logger, e.g. one built over a zaptest observer core.
func Wrap(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

// zapLogger wraps a *zap.Logger to implement Logger.
type zapLogger struct{ l *zap.Logger }

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z.l.With(fields...)}
}

func (z *zapLogger) Sync() error {
	return z.l.Sync()
}

// defaultLogger falls back to the standard log package.
type defaultLogger struct {
	fields []Field
}

func (d defaultLogger) Debug(msg string, fields ...Field) {}

func (d defaultLogger) Info(msg string, fields ...Field) {
	log.Println("INFO:", msg, flatten(append(d.fields, fields...)...))
}

func (d defaultLogger) Warn(msg string, fields ...Field) {
	log.Println("WARNING:", msg, flatten(append(d.fields, fields...)...))
}

func (d defaultLogger) Error(msg string, fields ...Field) {
	log.Println("ERROR:", msg, flatten(append(d.fields, fields...)...))
}

func (d defaultLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(d.fields)+len(fields))
	merged = append(merged, d.fields...)
	return defaultLogger{fields: append(merged, fields...)}
}

func (d defaultLogger) Sync() error { return nil }

// flatten renders fields as "key1=value1 key2=value2" using zap's console encoder.
func flatten(fields ...Field) string {
	if len(fields) == 0 {
		return ""
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LineEnding: " ",
	})
	buffer, err := enc.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return ""
	}
	defer buffer.Free()
	var buf bytes.Buffer
	buf.Write(buffer.Bytes())
	return strings.TrimSpace(buf.String())
}

// context key type for carrying Logger
type ctxKey struct{}

// Attach returns a new context with the provided Logger.
func Attach(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, lg)
}

// FromContext retrieves the Logger from ctx, or falls back to defaultLogger.
func FromContext(ctx context.Context) Logger {
	if lg, ok := ctx.Value(ctxKey{}).(Logger); ok && lg != nil {
		return lg
	}
	return defaultLogger{}
}

// noopLogger does absolutely nothing. For tests only.
type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}
func (noopLogger) With(...Field) Logger   { return noopLogger{} }
func (noopLogger) Sync() error            { return nil }

var Discard Logger = noopLogger{}
