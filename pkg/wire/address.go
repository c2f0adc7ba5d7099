package wire

import (
	"fmt"
	"strconv"
)

// Address identifies a node on the bus.
type Address uint8

// Reserved and boundary addresses.
const (
	FirstNodeAddress Address = 0
	MasterAddress            = FirstNodeAddress
	BroadcastAddress Address = 255
	LastNodeAddress          = BroadcastAddress - 1
)

// IsValidNode checks if the address can be owned by a node.
func (a Address) IsValidNode() bool {
	return a <= LastNodeAddress
}

// IsValidSlave checks if the address can be owned by a slave.
func (a Address) IsValidSlave() bool {
	return a.IsValidNode() && a != MasterAddress
}

// IsBroadcast checks if the address targets all slaves.
func (a Address) IsBroadcast() bool {
	return a == BroadcastAddress
}

func (a Address) String() string {
	switch a {
	case BroadcastAddress:
		return "broadcast"
	case MasterAddress:
		return "master"
	}
	return strconv.Itoa(int(a))
}

// MessageType tags the kind of an application message. The values below are
// conventions only, any value is carried verbatim.
type MessageType uint8

// Common message types.
const (
	TypeRequest MessageType = 0x01
	TypeAck     MessageType = 0x02
	TypeData    MessageType = 0x03
	TypeError   MessageType = 0x04
)

func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeAck:
		return "ack"
	case TypeData:
		return "data"
	case TypeError:
		return "error"
	default:
		return fmt.Sprintf("type(0x%02x)", byte(t))
	}
}
