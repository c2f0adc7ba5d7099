package device

import (
	"github.com/robotalks/simple485.go/pkg/logging"
	"github.com/robotalks/simple485.go/pkg/slave"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Echo sends back every unicast payload as TypeData.
type Echo struct {
	Logger logging.Logger
}

// HandleUnicast implements slave.Handler.
func (e *Echo) HandleUnicast(msg slave.ReceivedMessage) *slave.Response {
	return &slave.Response{Type: wire.TypeData, Payload: msg.Payload}
}

// HandleBroadcast implements slave.BroadcastHandler.
func (e *Echo) HandleBroadcast(msg slave.ReceivedMessage) {
	if e.Logger != nil {
		e.Logger.Infof("broadcast from %s: %d bytes", msg.Sender, len(msg.Payload))
	}
}
