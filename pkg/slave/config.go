package slave

import (
	"fmt"
	"time"

	"github.com/robotalks/simple485.go/pkg/logging"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Default timings.
const (
	DefaultFrameTimeout    = 500 * time.Millisecond
	DefaultTurnaroundDelay = 10 * time.Millisecond
	DefaultResponseWindow  = 100 * time.Millisecond
)

// Config configures a Slave.
type Config struct {
	// Address is the local address, 1 to 254.
	Address wire.Address
	// MaxPayload limits received and sent payloads, defaults to wire.MaxPayloadLen.
	MaxPayload int
	// FrameTimeout is the longest gap allowed between two bytes of a frame.
	// Negative disables it.
	FrameTimeout time.Duration
	// TurnaroundDelay is the bus silence required before transmitting.
	TurnaroundDelay time.Duration
	// ResponseWindow is how long after the last byte of a request a
	// response may still be issued and started.
	ResponseWindow time.Duration
	// MasterOnly drops frames not sent by wire.MasterAddress.
	MasterOnly bool
	// Preamble is the number of LF bytes sent before each response.
	Preamble int

	Logger   logging.Logger
	Observer Observer
}

func (c Config) withDefaults() (Config, error) {
	if !c.Address.IsValidSlave() {
		return c, fmt.Errorf("%w: %s", ErrInvalidAddress, c.Address)
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = wire.MaxPayloadLen
	}
	if c.MaxPayload > wire.MaxPayloadLen {
		return c, fmt.Errorf("%w: max payload %d exceeds %d", ErrInvalidConfig, c.MaxPayload, wire.MaxPayloadLen)
	}
	if c.FrameTimeout == 0 {
		c.FrameTimeout = DefaultFrameTimeout
	} else if c.FrameTimeout < 0 {
		c.FrameTimeout = 0
	}
	if c.TurnaroundDelay == 0 {
		c.TurnaroundDelay = DefaultTurnaroundDelay
	} else if c.TurnaroundDelay < 0 {
		c.TurnaroundDelay = 0
	}
	if c.ResponseWindow <= 0 {
		c.ResponseWindow = DefaultResponseWindow
	}
	if c.ResponseWindow <= c.TurnaroundDelay {
		return c, fmt.Errorf("%w: response window %v must exceed turnaround delay %v",
			ErrInvalidConfig, c.ResponseWindow, c.TurnaroundDelay)
	}
	if c.Preamble < 0 {
		c.Preamble = 0
	}
	if c.Logger == nil {
		c.Logger = logging.Glog(fmt.Sprintf("slave:%s", c.Address))
	}
	return c, nil
}
