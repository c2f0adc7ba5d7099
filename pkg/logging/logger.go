// Package logging provides the leveled logger handed to each slave.
package logging

import (
	"fmt"

	"github.com/golang/glog"
)

// Logger is a leveled log sink.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DebugLevel is the glog verbosity at which debug messages are emitted.
const DebugLevel glog.Level = 2

type glogLogger struct {
	prefix string
}

// Glog creates a Logger writing to glog, prefixing every message with name.
func Glog(name string) Logger {
	l := &glogLogger{}
	if name != "" {
		l.prefix = "[" + name + "] "
	}
	return l
}

func (l *glogLogger) Debugf(format string, args ...interface{}) {
	if glog.V(DebugLevel) {
		glog.InfoDepth(1, l.prefix+fmt.Sprintf(format, args...))
	}
}

func (l *glogLogger) Infof(format string, args ...interface{}) {
	glog.InfoDepth(1, l.prefix+fmt.Sprintf(format, args...))
}

func (l *glogLogger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, l.prefix+fmt.Sprintf(format, args...))
}

func (l *glogLogger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, l.prefix+fmt.Sprintf(format, args...))
}

type nopLogger struct{}

// Nop returns a Logger discarding everything.
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debugf(string, ...interface{})   {}
func (nopLogger) Infof(string, ...interface{})    {}
func (nopLogger) Warningf(string, ...interface{}) {}
func (nopLogger) Errorf(string, ...interface{})   {}
