// Package log is a thin structured-logging wrapper shared by every
// estarter package. It gives the rest of the tree the same
// Debugf/Infof/Warningf/
// Errorf call shape the teacher's own pkg/log exposes, backed by
// logrus instead of a bespoke logger.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("ESTARTER_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// SetLevel adjusts the minimum logged severity at runtime.
func SetLevel(debug bool) {
	if debug {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

// Fields is a convenience alias for structured log fields.
type Fields = logrus.Fields

// WithFields returns an entry carrying the given structured fields.
func WithFields(f Fields) *logrus.Entry {
	return std.WithFields(f)
}

func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warningf(format string, args ...any) {
	std.Warnf(format, args...)
}
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
