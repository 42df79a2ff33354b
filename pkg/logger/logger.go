package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with the field helpers used across services.
type Logger struct {
	*zap.Logger
}

// New builds a production zap logger with the given level and encoding ("json" or "console").
func New(level, encoding string) (*Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	if encoding == "" {
		encoding = "json"
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = encoding
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Logger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.Logger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.Logger.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.Logger.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.Logger.Fatal(msg, fields...) }

// DebugContext logs at debug level, attaching the request id carried by ctx when present.
func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, append(fields, contextFields(ctx)...)...)
}

// InfoContext logs at info level, attaching the request id carried by ctx when present.
func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Info(msg, append(fields, contextFields(ctx)...)...)
}

// WarnContext logs at warn level, attaching the request id carried by ctx when present.
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, append(fields, contextFields(ctx)...)...)
}

// ErrorContext logs at error level, attaching the request id carried by ctx when present.
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Error(msg, append(fields, contextFields(ctx)...)...)
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

type ctxKey struct{}

// WithRequestID stores a request/run id on the context for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return []zap.Field{zap.String("request_id", id)}
	}
	return nil
}

func Field(key string, value interface{}) zap.Field { return zap.Any(key, value) }

func ErrorField(err error) zap.Field { return zap.Error(err) }

func IntField(key string, value int) zap.Field { return zap.Int(key, value) }

func StringField(key, value string) zap.Field { return zap.String(key, value) }

func FloatField(key string, value float64) zap.Field { return zap.Float64(key, value) }
