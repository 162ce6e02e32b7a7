package observability

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/relaygate/internal/config"
)

// Context key for the logger.
type loggerKey struct{}

// Context key for the request-scoped correlation fields.
type correlationKey struct{}

// correlation holds the request/correlation identifiers threaded through
// RequestLogger. There is no tenancy or subject identity in this gateway;
// request_id and correlation_id are the only request-scoped log fields.
type correlation struct {
	requestID     string
	correlationID string
}

// WithCorrelation stores the request's identifiers in ctx for RequestLogger
// to pick up later in the pipeline.
func WithCorrelation(ctx context.Context, requestID, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlation{requestID: requestID, correlationID: correlationID})
}

// NewLogger creates a zap.Logger configured for JSON output to stdout.
//
// Log levels in use:
//   - error: panics recovered by the Recovery middleware, server errors
//   - warn:  shell executor disconnect failures
//   - info:  one line per completed request (RequestLogging), boot/shutdown
//   - debug: outbound HTTP target URLs (sensitive query values masked)
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns a logger enriched with the request's correlation
// fields, if any were stored via WithCorrelation.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	c, ok := ctx.Value(correlationKey{}).(correlation)
	if !ok {
		return logger
	}

	fields := []zap.Field{zap.String("request_id", c.requestID)}
	if c.correlationID != "" {
		fields = append(fields, zap.String("correlation_id", c.correlationID))
	}
	return logger.With(fields...)
}

// defaultMaskedQueryKeys is the closed set of query-parameter names masked
// before a target URL is logged, per the HTTP executor's masking rule.
var defaultMaskedQueryKeys = map[string]bool{
	"api_key": true, "apikey": true, "token": true,
	"secret": true, "password": true, "pwd": true,
}

// MaskTargetURL returns raw with the values of sensitive query keys
// (case-insensitive) replaced by "***MASKED***". This is a logging-only
// transformation: the outbound request always uses the original value.
func MaskTargetURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := parsed.Query()
	for key := range q {
		if defaultMaskedQueryKeys[strings.ToLower(key)] {
			q.Set(key, "***MASKED***")
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
