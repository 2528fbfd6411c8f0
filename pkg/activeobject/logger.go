package activeobject

import (
	"fmt"
	"log"
	"os"
)

// Logger is the logging seam used by the worker loop. It only ever reports
// handler panics — the core never logs on the hot
// path — but carries the fuller leveled/structured shape this lineage uses
// elsewhere, so a caller's own logger (zap, zerolog, whatever) can satisfy
// it directly instead of being wrapped.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})

	// WithFields returns a logger that attaches the given key/value pairs
	// to every subsequent message; used to tag a panic log with the
	// instance ID without threading it through every call site.
	WithFields(fields map[string]interface{}) Logger
}

// defaultLogger implements Logger on top of the standard log package, the
// same level-prefixed style the rest of this lineage uses.
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	fields      map[string]interface{}
}

// NewDefaultLogger returns the Logger used by Base when none is supplied
// via WithLogger.
func NewDefaultLogger() Logger {
	return &defaultLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.LstdFlags|log.Lshortfile),
		warnLogger:  log.New(os.Stderr, "[WARN] ", log.LstdFlags|log.Lshortfile),
		infoLogger:  log.New(os.Stdout, "[INFO] ", log.LstdFlags|log.Lshortfile),
	}
}

func (l *defaultLogger) write(logger *log.Logger, msg string) {
	if len(l.fields) == 0 {
		logger.Output(3, msg)
		return
	}
	logger.Output(3, fmt.Sprintf("%s %v", msg, l.fields))
}

func (l *defaultLogger) Error(args ...interface{}) { l.write(l.errorLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.write(l.errorLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Warn(args ...interface{}) { l.write(l.warnLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.write(l.warnLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Info(args ...interface{}) { l.write(l.infoLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.write(l.infoLogger, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &defaultLogger{
		errorLogger: l.errorLogger,
		warnLogger:  l.warnLogger,
		infoLogger:  l.infoLogger,
		fields:      merged,
	}
}

// noopLogger discards everything; used by tests that don't want worker
// panic logs cluttering test output.
type noopLogger struct{}

func (noopLogger) Error(args ...interface{})                 {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
func (noopLogger) Warn(args ...interface{})                  {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Info(args ...interface{})                  {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) WithFields(map[string]interface{}) Logger  { return noopLogger{} }
