package slave

import (
	"fmt"
	"time"

	"github.com/robotalks/simple485.go/pkg/wire"
)

// EventKind classifies an Event.
type EventKind int

// Event kinds.
const (
	// EventFrameError reports a discarded frame, Err tells the reason.
	EventFrameError EventKind = iota
	// EventMessage reports an accepted message before it is dispatched.
	EventMessage
	// EventResponseSent reports a response written to the bus.
	EventResponseSent
	// EventResponseDropped reports a response abandoned before transmission.
	EventResponseDropped
	// EventTransmitError reports a driver failure, the response is retried
	// until its window elapses.
	EventTransmitError
	// EventHandlerPanic reports a recovered panic from the Handler.
	EventHandlerPanic
	// EventNonMasterDropped reports a frame from a source other than the master
	// when MasterOnly is set.
	EventNonMasterDropped
)

func (k EventKind) String() string {
	switch k {
	case EventFrameError:
		return "frame-error"
	case EventMessage:
		return "message"
	case EventResponseSent:
		return "response-sent"
	case EventResponseDropped:
		return "response-dropped"
	case EventTransmitError:
		return "transmit-error"
	case EventHandlerPanic:
		return "handler-panic"
	case EventNonMasterDropped:
		return "non-master-dropped"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a diagnostic notification from a Slave.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Address wire.Address
	// Message is set for EventMessage, EventHandlerPanic and EventNonMasterDropped.
	Message *ReceivedMessage
	// Peer and Type describe the response for response events.
	Peer wire.Address
	Type wire.MessageType
	Err  error
}

func (e Event) String() string {
	switch {
	case e.Message != nil:
		return fmt.Sprintf("%s@%s: %s", e.Kind, e.Address, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s@%s: %v", e.Kind, e.Address, e.Err)
	default:
		return fmt.Sprintf("%s@%s: to %s type %s", e.Kind, e.Address, e.Peer, e.Type)
	}
}

// Observer receives diagnostic events.
// It is called synchronously from the execution context driving the Slave.
type Observer interface {
	Observe(Event)
}

// ObserveFunc is the func form of Observer.
type ObserveFunc func(Event)

// Observe implements Observer.
func (f ObserveFunc) Observe(ev Event) {
	f(ev)
}

// Observers fans out events to multiple observers.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(ev Event) {
	for _, ob := range o {
		if ob != nil {
			ob.Observe(ev)
		}
	}
}
