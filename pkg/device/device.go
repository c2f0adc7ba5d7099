// Package device contains ready to use slave handlers.
package device

import (
	"fmt"
	"sort"

	"github.com/robotalks/simple485.go/pkg/logging"
	"github.com/robotalks/simple485.go/pkg/slave"
)

// Factory creates a Handler.
type Factory func(logger logging.Logger) (slave.Handler, error)

var factories = map[string]Factory{
	"echo": func(logger logging.Logger) (slave.Handler, error) {
		return &Echo{Logger: logger}, nil
	},
	"identity": func(logger logging.Logger) (slave.Handler, error) {
		return NewIdentity("simple485")
	},
}

// Names lists the registered devices.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the named device.
func New(name string, logger logging.Logger) (slave.Handler, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown device %q, expect one of %v", name, Names())
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return f(logger)
}
