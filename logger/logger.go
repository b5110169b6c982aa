package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultFile is the run log written in the working directory when no other
// path is configured.
const DefaultFile = "railtube.log"

// Logger is the append-only sink that every component writes its progress
// and command lines to. Args are alternating key/value pairs.
type Logger interface {
	Info(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	With(args ...interface{}) Logger
}

type StdLogger struct {
	entry *logrus.Entry
}

// New opens path for appending and returns a logger stamped with a fresh run
// id. A sink that cannot be opened is reported once on stderr and replaced by
// a discard writer: the run itself must not fail because of its log.
func New(path string, level string) (Logger, io.Closer) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	var closer io.Closer = nopCloser{}
	if path == "" {
		path = DefaultFile
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", path, err)
		l.SetOutput(io.Discard)
	} else {
		l.SetOutput(file)
		closer = file
	}

	return &StdLogger{entry: l.WithField("run", uuid.NewString())}, closer
}

// NewWriter logs to w. Tests use it with a buffer.
func NewWriter(w io.Writer) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	return &StdLogger{entry: logrus.NewEntry(l)}
}

// Discard drops everything.
func Discard() Logger {
	return NewWriter(io.Discard)
}

func (l *StdLogger) Info(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Info(msg)
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Debug(msg)
}

func (l *StdLogger) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Warn(msg)
}

func (l *StdLogger) Error(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Error(msg)
}

func (l *StdLogger) With(args ...interface{}) Logger {
	return &StdLogger{entry: l.entry.WithFields(fields(args))}
}

func fields(args []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			f[key] = "(missing)"
			break
		}
		f[key] = args[i+1]
	}
	return f
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
