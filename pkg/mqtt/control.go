package mqtt

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/simple485.go/pkg/wire"
)

// Control commands, the last element of the control topic.
const (
	CmdResetCounters = "reset-counters"
	CmdSetAddress    = "set-address"
)

// ControlTarget is the slave being controlled.
type ControlTarget interface {
	SetAddress(wire.Address) error
	ResetCounters()
}

// Invoker runs fn in the execution context owning the slave, e.g. serial.Link.
type Invoker interface {
	Invoke(ctx context.Context, fn func()) error
}

// Controller applies commands received on the control topic.
type Controller struct {
	Target  ControlTarget
	Invoker Invoker
	Timeout time.Duration
}

// Subscribe subscribes the control topic of addr.
func (c *Controller) Subscribe(q *Queue, addr wire.Address) {
	q.Sub(fmt.Sprintf(TopicControl, addr), c.Handle)
}

// Handle implements Handler.
func (c *Controller) Handle(topic string, payload []byte) {
	if err := c.Exec(path.Base(topic), strings.TrimSpace(string(payload))); err != nil {
		glog.Warningf("control %s: %v", topic, err)
	}
}

// Exec runs a single command.
func (c *Controller) Exec(cmd, arg string) error {
	var fn func() error
	switch cmd {
	case CmdResetCounters:
		fn = func() error {
			c.Target.ResetCounters()
			return nil
		}
	case CmdSetAddress:
		addr, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", arg, err)
		}
		fn = func() error {
			return c.Target.SetAddress(wire.Address(addr))
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var err error
	if ierr := c.Invoker.Invoke(ctx, func() { err = fn() }); ierr != nil {
		return ierr
	}
	return err
}
