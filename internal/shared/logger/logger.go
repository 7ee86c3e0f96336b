package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"portfolio-sync/internal/shared/contextkeys"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger is the structured logger handed to every component.
//
// The unformatted methods accept zap.Field values anywhere in args; they are
// lifted into structured fields instead of being printed inline.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger
}

// LogrusLogger implements Logger on a logrus entry.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger writes to stdout at LOG_LEVEL (default info). Output is JSON when
// LOG_FORMAT=json or ENVIRONMENT is production.
func NewLogger() Logger {
	format := os.Getenv("LOG_FORMAT")
	switch strings.ToLower(os.Getenv("ENVIRONMENT")) {
	case "production", "prod":
		format = "json"
	}
	return NewLoggerWithOutput(os.Getenv("LOG_LEVEL"), format, os.Stdout)
}

// NewLoggerWithOutput builds a logger writing to out. An unparsable level
// falls back to info.
func NewLoggerWithOutput(level, format string, out io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(out)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(args ...interface{}) { l.with(args).Debug(withoutFields(args)...) }
func (l *LogrusLogger) Info(args ...interface{})  { l.with(args).Info(withoutFields(args)...) }
func (l *LogrusLogger) Warn(args ...interface{})  { l.with(args).Warn(withoutFields(args)...) }
func (l *LogrusLogger) Error(args ...interface{}) { l.with(args).Error(withoutFields(args)...) }
func (l *LogrusLogger) Fatal(args ...interface{}) { l.with(args).Fatal(withoutFields(args)...) }

func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *LogrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusLogger) WithComponent(component string) Logger {
	return &LogrusLogger{entry: l.entry.WithField("component", component)}
}

// contextFields maps context keys to the field names they are logged under.
var contextFields = []struct {
	key  interface{}
	name string
}{
	{contextkeys.RequestIDKey, "request_id"},
	{contextkeys.OriginIDKey, "origin_id"},
	{contextkeys.CollectionKey, "collection"},
	{contextkeys.VisitorIDKey, "visitor_id"},
	{contextkeys.OperationKey, "operation"},
}

// WithContext attaches the non-empty string values carried by ctx.
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	fields := logrus.Fields{}
	for _, cf := range contextFields {
		if v, ok := ctx.Value(cf.key).(string); ok && v != "" {
			fields[cf.name] = v
		}
	}
	if len(fields) == 0 {
		return l
	}
	return &LogrusLogger{entry: l.entry.WithFields(fields)}
}

// with returns the entry carrying every zap.Field found in args.
func (l *LogrusLogger) with(args []interface{}) *logrus.Entry {
	var enc *zapcore.MapObjectEncoder
	for _, arg := range args {
		if field, ok := arg.(zap.Field); ok {
			if enc == nil {
				enc = zapcore.NewMapObjectEncoder()
			}
			field.AddTo(enc)
		}
	}
	if enc == nil {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(enc.Fields))
}

func withoutFields(args []interface{}) []interface{} {
	rest := args[:0:0]
	for _, arg := range args {
		if _, ok := arg.(zap.Field); !ok {
			rest = append(rest, arg)
		}
	}
	return rest
}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(args ...interface{})                         {}
func (noopLogger) Info(args ...interface{})                          {}
func (noopLogger) Warn(args ...interface{})                          {}
func (noopLogger) Error(args ...interface{})                         {}
func (noopLogger) Fatal(args ...interface{})                         {}
func (noopLogger) Debugf(format string, args ...interface{})         {}
func (noopLogger) Infof(format string, args ...interface{})          {}
func (noopLogger) Warnf(format string, args ...interface{})          {}
func (noopLogger) Errorf(format string, args ...interface{})         {}
func (noopLogger) Fatalf(format string, args ...interface{})         {}
func (n noopLogger) WithFields(fields map[string]interface{}) Logger { return n }
func (n noopLogger) WithContext(ctx context.Context) Logger          { return n }
func (n noopLogger) WithComponent(component string) Logger           { return n }
