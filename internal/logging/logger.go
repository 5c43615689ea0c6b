// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// TraceIDKey is the context key for the per-transaction trace ID.
	TraceIDKey ContextKey = "trace_id"
	// ClientIPKey is the context key for the request's client IP.
	ClientIPKey ContextKey = "client_ip"
	// RouteIDKey is the context key for the matched route id.
	RouteIDKey ContextKey = "route_id"
)

// Logger wraps logrus.Logger with field helpers tailored to the pipeline.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the named service with the given level/format.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.ToLower(format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches trace/client-ip/route fields carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(ClientIPKey); v != nil {
		entry = entry.WithField("client_ip", v)
	}
	if v := ctx.Value(RouteIDKey); v != nil {
		entry = entry.WithField("route_id", v)
	}
	return entry
}

// NewTraceID generates a transaction trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID returns a derived context carrying the trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithClientIP returns a derived context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// LogSecurityEvent logs a security-relevant decision (block, challenge,
// rate-limit) at warn level with structured fields.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, details map[string]interface{}) {
	fields := logrus.Fields{
		"event_type": eventType,
		"severity":   "security",
	}
	for k, v := range details {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Warn("security event")
}

// LogRequest logs a completed HTTP transaction.
func (l *Logger) LogRequest(ctx context.Context, method, uri string, status int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"uri":         uri,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("request")
}

var defaultLogger *Logger

// InitDefault initializes the package-wide default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-wide default logger, initializing a
// conservative fallback if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("l7waf", "info", "json")
	}
	return defaultLogger
}
