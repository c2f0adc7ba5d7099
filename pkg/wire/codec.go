package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/sigurn/crc16"
)

// Control bytes.
const (
	SOH byte = 0x01 // start of frame
	EOT byte = 0x04 // end of frame
	ESC byte = 0x1b // escape marker
	LF  byte = 0x0a // idle filler sent before frames

	escapeMask byte = 0x20
)

// Sizes of the fixed fields.
const (
	HeaderLen     = 4 // SRC, DST, TYPE, LEN
	ChecksumLen   = 2
	MaxPayloadLen = 255
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// MaxFrameLen returns the worst case encoded size of a frame carrying
// up to maxPayload bytes, i.e. with every body byte escaped.
func MaxFrameLen(maxPayload int) int {
	return 2 + 2*(HeaderLen+maxPayload+ChecksumLen)
}

// Checksum calculates the CRC-16/MODBUS of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// NeedsEscaping checks if b must be escaped inside a frame body.
func NeedsEscaping(b byte) bool {
	return b == SOH || b == EOT || b == ESC
}

// Frame contains the decoded fields of a frame.
type Frame struct {
	Source      Address
	Destination Address
	Type        MessageType
	Payload     []byte
}

// IsBroadcast checks if the frame is sent to all slaves.
func (f *Frame) IsBroadcast() bool {
	return f.Destination.IsBroadcast()
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() ([]byte, error) {
	return Encode(f.Source, f.Destination, f.Type, f.Payload)
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{src=%s, dst=%s, type=%s, payload=%s}",
		f.Source, f.Destination, f.Type, hex.EncodeToString(f.Payload))
}

// Encode builds the wire bytes of a frame.
func Encode(src, dst Address, typ MessageType, payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, MaxFrameLen(len(payload))), src, dst, typ, payload)
}

// AppendFrame appends the encoded frame to buf.
func AppendFrame(buf []byte, src, dst Address, typ MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return buf, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayloadLen)
	}
	head := [HeaderLen]byte{byte(src), byte(dst), byte(typ), byte(len(payload))}
	crc := crc16.Init(crcTable)
	crc = crc16.Update(crc, head[:], crcTable)
	crc = crc16.Update(crc, payload, crcTable)
	crc = crc16.Complete(crc, crcTable)

	buf = append(buf, SOH)
	buf = appendEscaped(buf, head[:]...)
	buf = appendEscaped(buf, payload...)
	buf = appendEscaped(buf, byte(crc), byte(crc>>8))
	return append(buf, EOT), nil
}

func appendEscaped(buf []byte, data ...byte) []byte {
	for _, b := range data {
		if NeedsEscaping(b) {
			buf = append(buf, ESC, b^escapeMask)
		} else {
			buf = append(buf, b)
		}
	}
	return buf
}

// DecodeFrame decodes a complete frame including both delimiters.
// The returned payload never shares memory with raw.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 2 || raw[0] != SOH || raw[len(raw)-1] != EOT {
		return Frame{}, fmt.Errorf("%w: missing delimiters", ErrMalformedFrame)
	}
	body, err := unescape(raw[1 : len(raw)-1])
	if err != nil {
		return Frame{}, err
	}
	if len(body) < HeaderLen+ChecksumLen {
		return Frame{}, fmt.Errorf("%w: %d body bytes", ErrMalformedFrame, len(body))
	}
	n := len(body) - ChecksumLen
	sent := uint16(body[n]) | uint16(body[n+1])<<8
	if sum := Checksum(body[:n]); sum != sent {
		return Frame{}, fmt.Errorf("%w: received %04x, calculated %04x", ErrChecksumMismatch, sent, sum)
	}
	if declared := int(body[3]); declared != n-HeaderLen {
		return Frame{}, fmt.Errorf("%w: declared length %d, actual %d", ErrMalformedFrame, declared, n-HeaderLen)
	}
	return Frame{
		Source:      Address(body[0]),
		Destination: Address(body[1]),
		Type:        MessageType(body[2]),
		Payload:     body[HeaderLen:n:n],
	}, nil
}

// unescape always allocates, DecodeFrame relies on it.
func unescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch b {
		case SOH, EOT:
			return nil, fmt.Errorf("%w: delimiter 0x%02x at %d", ErrMalformedFrame, b, i+1)
		case ESC:
			if i++; i >= len(data) {
				return nil, fmt.Errorf("%w: dangling escape", ErrMalformedFrame)
			}
			if b = data[i] ^ escapeMask; !NeedsEscaping(b) {
				return nil, fmt.Errorf("%w: invalid escape 0x%02x at %d", ErrMalformedFrame, data[i], i+1)
			}
		}
		out = append(out, b)
	}
	return out, nil
}
