package slave

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/robotalks/simple485.go/pkg/wire"
)

// ReceivedMessage is an accepted message.
type ReceivedMessage struct {
	Sender      wire.Address
	Destination wire.Address
	Type        wire.MessageType
	// Payload is owned by the message, never shared with the receive buffer.
	Payload    []byte
	ReceivedAt time.Time
}

// IsBroadcast checks if the message is sent to all slaves.
func (m *ReceivedMessage) IsBroadcast() bool {
	return m.Destination.IsBroadcast()
}

func (m *ReceivedMessage) String() string {
	return fmt.Sprintf("ReceivedMessage{src=%s, dst=%s, type=%s, payload=%s}",
		m.Sender, m.Destination, m.Type, hex.EncodeToString(m.Payload))
}

// Response is the optional result of handling a unicast message.
type Response struct {
	Type    wire.MessageType
	Payload []byte
}
