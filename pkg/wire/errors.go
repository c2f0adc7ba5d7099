package wire

import "errors"

var (
	// ErrMalformedFrame indicates a structural inconsistency in a frame:
	// truncation, a bad escape sequence or a length not matching the payload.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrChecksumMismatch indicates the transmitted CRC doesn't match the content.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrOverflow indicates a frame larger than the receive buffer.
	ErrOverflow = errors.New("frame overflow")
	// ErrTimeout indicates the gap between two bytes of a frame was too long.
	ErrTimeout = errors.New("inter-byte timeout")
	// ErrPayloadTooLarge is returned when encoding a payload over MaxPayloadLen.
	ErrPayloadTooLarge = errors.New("payload too large")
)
