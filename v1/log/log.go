// Package log provides the leveled loggers used across SchedulerGodX.
//
// The shape (package-level DEBUG/INFO/WARNING/ERROR/FATAL values exposing
// Print/Printf) mirrors the machinery log package this module was built
// from, so call sites read as log.INFO.Print(...) / log.ERROR.Printf(...)
// rather than a structured logger's method chain.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Leveled is the subset of *logrus.Logger call sites in this module use.
type Leveled interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})
	Println(args ...interface{})
}

type level struct {
	logger *logrus.Logger
	fn     func(args ...interface{})
	fnf    func(format string, args ...interface{})
}

func (l *level) Print(args ...interface{})                 { l.fn(args...) }
func (l *level) Printf(format string, args ...interface{}) { l.fnf(format, args...) }
func (l *level) Println(args ...interface{})               { l.fn(args...) }

var (
	base = logrus.New()

	// DEBUG, INFO, WARNING, ERROR and FATAL are package-level loggers bound
	// at import time. SetOutput/SetLevel reconfigure the single logrus
	// logger they all wrap, so callers that already captured the Leveled
	// value keep writing to the new destination.
	DEBUG   Leveled
	INFO    Leveled
	WARNING Leveled
	ERROR   Leveled
	FATAL   Leveled
)

func init() {
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(logrus.DebugLevel)
	base.SetOutput(os.Stderr)
	bind(base)
}

func bind(l *logrus.Logger) {
	DEBUG = &level{logger: l, fn: l.Debug, fnf: l.Debugf}
	INFO = &level{logger: l, fn: l.Info, fnf: l.Infof}
	WARNING = &level{logger: l, fn: l.Warning, fnf: l.Warningf}
	ERROR = &level{logger: l, fn: l.Error, fnf: l.Errorf}
	FATAL = &level{logger: l, fn: l.Fatal, fnf: l.Fatalf}
}

// SetOutput redirects all leveled loggers to w.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// SetLevel adjusts the minimum level logrus will emit.
func SetLevel(lvl logrus.Level) {
	base.SetLevel(lvl)
}

// Discard silences all logging, used by tests that don't want log noise on
// stderr/a log file.
func Discard() {
	base.SetOutput(io.Discard)
}
