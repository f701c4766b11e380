package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/windmill-labs/windmill-worker/pkg/config"
)

// Fields is a structured set of key/value pairs attached to a log line.
type Fields map[string]interface{}

// Logger is the structured logger every subsystem depends on.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	InfoFields(msg string, fields Fields)
	ErrorFields(msg string, fields Fields)
	InfoCtx(ctx context.Context, msg string, fields Fields)
	ErrorCtx(ctx context.Context, msg string, fields Fields)
	WithComponent(component string) Logger
}

type logrusLogger struct {
	logger    *logrus.Logger
	component string
}

// New builds a Logger from LoggingConfig, wiring its level/format/output.
func New(c config.LoggingConfig) (Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(c.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "@timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if c.Output != "" && c.Output != "stdout" {
		file, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", c.Output, err)
		}
		log.SetOutput(file)
	}

	return &logrusLogger{logger: log}, nil
}

func (l *logrusLogger) entry() *logrus.Entry {
	return l.logger.WithField("component", l.component)
}

func kvToFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func (l *logrusLogger) Debug(msg string, kv ...interface{}) {
	l.entry().WithFields(kvToFields(kv)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, kv ...interface{}) {
	l.entry().WithFields(kvToFields(kv)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, kv ...interface{}) {
	l.entry().WithFields(kvToFields(kv)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, kv ...interface{}) {
	l.entry().WithFields(kvToFields(kv)).Error(msg)
}

func (l *logrusLogger) InfoFields(msg string, fields Fields) {
	l.entry().WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *logrusLogger) ErrorFields(msg string, fields Fields) {
	l.entry().WithFields(logrus.Fields(fields)).Error(msg)
}

func (l *logrusLogger) InfoCtx(ctx context.Context, msg string, fields Fields) {
	l.logger.WithContext(ctx).WithFields(logrus.Fields(fields)).WithField("component", l.component).Info(msg)
}

func (l *logrusLogger) ErrorCtx(ctx context.Context, msg string, fields Fields) {
	l.logger.WithContext(ctx).WithFields(logrus.Fields(fields)).WithField("component", l.component).Error(msg)
}

func (l *logrusLogger) WithComponent(component string) Logger {
	return &logrusLogger{logger: l.logger, component: component}
}

// package-level default logger, so early-init code (flag parsing, config
// loading) can log before a Manager exists.
var defaultLogger Logger = noop{}

// Init installs the process-wide default logger.
func Init(c config.LoggingConfig) error {
	l, err := New(c)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

func Default() Logger { return defaultLogger }

func Debug(msg string, kv ...interface{}) { defaultLogger.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { defaultLogger.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { defaultLogger.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { defaultLogger.Error(msg, kv...) }

type noop struct{}

func (noop) Debug(string, ...interface{})                     {}
func (noop) Info(string, ...interface{})                      {}
func (noop) Warn(string, ...interface{})                      {}
func (noop) Error(string, ...interface{})                     {}
func (noop) InfoFields(string, Fields)                         {}
func (noop) ErrorFields(string, Fields)                        {}
func (noop) InfoCtx(context.Context, string, Fields)           {}
func (noop) ErrorCtx(context.Context, string, Fields)          {}
func (n noop) WithComponent(string) Logger                     { return n }
