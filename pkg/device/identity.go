package device

import (
	"github.com/denisbrodbeck/machineid"

	"github.com/robotalks/simple485.go/pkg/slave"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Identity answers a TypeRequest with "name:id", where id identifies the
// host machine. Other message types get a TypeError.
type Identity struct {
	Name string
	ID   string
}

// MachineID retrieves the machine ID hashed with appID.
func MachineID(appID string) (string, error) {
	return machineid.ProtectedID(appID)
}

// NewIdentity creates an Identity named name with the protected machine ID.
func NewIdentity(name string) (*Identity, error) {
	id, err := MachineID(name)
	if err != nil {
		return nil, err
	}
	return &Identity{Name: name, ID: id}, nil
}

// HandleUnicast implements slave.Handler.
func (d *Identity) HandleUnicast(msg slave.ReceivedMessage) *slave.Response {
	if msg.Type != wire.TypeRequest {
		return &slave.Response{Type: wire.TypeError, Payload: []byte{byte(msg.Type)}}
	}
	payload := d.Name + ":" + d.ID
	if len(payload) > wire.MaxPayloadLen {
		payload = payload[:wire.MaxPayloadLen]
	}
	return &slave.Response{Type: wire.TypeData, Payload: []byte(payload)}
}
