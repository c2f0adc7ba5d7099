package wire

import (
	"fmt"
	"time"

	"github.com/sigurn/crc16"
)

// EventKind is the outcome of feeding one byte into the Assembler.
type EventKind int

const (
	// EventIncomplete means more bytes are needed.
	EventIncomplete EventKind = iota
	// EventFrameReady means a complete, checksum verified frame is available.
	EventFrameReady
	// EventError means the frame in progress was discarded.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventIncomplete:
		return "incomplete"
	case EventFrameReady:
		return "frame-ready"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// FrameEvent indicates the result after one assembling step.
type FrameEvent struct {
	Kind EventKind
	// Raw is the complete frame including delimiters when Kind is EventFrameReady.
	// It refers to the Assembler's buffer and is only valid until the next call.
	Raw []byte
	// Err is set when Kind is EventError.
	Err error
}

type asmState int

const (
	stateIdle     asmState = iota // waiting for SOH
	stateHeader                   // accumulating SRC, DST, TYPE, LEN
	statePayload                  // accumulating LEN payload bytes
	stateChecksum                 // accumulating CRC bytes
	stateEnd                      // CRC verified, waiting for EOT
)

// Assembler extracts frames from a byte stream.
// It is not safe for concurrent use.
type Assembler struct {
	maxPayload int
	timeout    time.Duration

	buf      []byte
	state    asmState
	escaped  bool
	count    int
	head     [HeaderLen]byte
	sum      [ChecksumLen]byte
	crc      uint16
	scratch  [1]byte
	lastByte time.Time
}

// NewAssembler creates an Assembler accepting payloads up to maxPayload bytes
// and abandoning a frame when two of its bytes are more than timeout apart.
// A zero timeout disables the inter-byte check.
func NewAssembler(maxPayload int, timeout time.Duration) *Assembler {
	if maxPayload <= 0 || maxPayload > MaxPayloadLen {
		maxPayload = MaxPayloadLen
	}
	return &Assembler{
		maxPayload: maxPayload,
		timeout:    timeout,
		buf:        make([]byte, 0, MaxFrameLen(maxPayload)),
	}
}

// MaxPayload returns the largest accepted payload.
func (a *Assembler) MaxPayload() int {
	return a.maxPayload
}

// Receiving indicates a frame is in progress.
func (a *Assembler) Receiving() bool {
	return a.state != stateIdle
}

// Deadline returns when the frame in progress times out.
func (a *Assembler) Deadline() (time.Time, bool) {
	if a.state == stateIdle || a.timeout <= 0 {
		return time.Time{}, false
	}
	return a.lastByte.Add(a.timeout), true
}

// Reset discards any frame in progress.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.state = stateIdle
	a.escaped = false
	a.count = 0
	a.head = [HeaderLen]byte{}
	a.sum = [ChecksumLen]byte{}
	a.crc = 0
	a.scratch[0] = 0
	a.lastByte = time.Time{}
}

// Tick checks the inter-byte timeout without a new byte.
func (a *Assembler) Tick(now time.Time) FrameEvent {
	if a.expired(now) {
		return a.fail(fmt.Errorf("%w: %d bytes received", ErrTimeout, len(a.buf)))
	}
	return FrameEvent{}
}

// Push consumes one byte received at now.
func (a *Assembler) Push(b byte, now time.Time) FrameEvent {
	var ev FrameEvent
	if a.expired(now) {
		ev = a.fail(fmt.Errorf("%w: %d bytes received", ErrTimeout, len(a.buf)))
	}

	if b == SOH {
		if a.state != stateIdle {
			ev = FrameEvent{
				Kind: EventError,
				Err:  fmt.Errorf("%w: restarted after %d bytes", ErrMalformedFrame, len(a.buf)),
			}
		}
		a.Reset()
		a.buf = append(a.buf, b)
		a.crc = crc16.Init(crcTable)
		a.state, a.lastByte = stateHeader, now
		return ev
	}
	if a.state == stateIdle {
		return ev
	}

	a.lastByte = now
	if len(a.buf) >= cap(a.buf) {
		return a.fail(fmt.Errorf("%w: more than %d bytes", ErrOverflow, cap(a.buf)))
	}
	a.buf = append(a.buf, b)

	if a.state == stateEnd {
		if b != EOT {
			return a.fail(fmt.Errorf("%w: expect EOT, got 0x%02x", ErrMalformedFrame, b))
		}
		return a.frameReady()
	}

	switch b {
	case EOT:
		return a.fail(fmt.Errorf("%w: truncated at %d bytes", ErrMalformedFrame, len(a.buf)))
	case ESC:
		if a.escaped {
			return a.fail(fmt.Errorf("%w: repeated escape", ErrMalformedFrame))
		}
		a.escaped = true
		return FrameEvent{}
	}
	if a.escaped {
		a.escaped = false
		if b ^= escapeMask; !NeedsEscaping(b) {
			return a.fail(fmt.Errorf("%w: invalid escape 0x%02x", ErrMalformedFrame, b^escapeMask))
		}
	}
	return a.consume(b)
}

func (a *Assembler) consume(b byte) FrameEvent {
	switch a.state {
	case stateHeader:
		a.head[a.count] = b
		a.count++
		a.update(b)
		if a.count < HeaderLen {
			break
		}
		length := int(a.head[3])
		if length > a.maxPayload {
			return a.fail(fmt.Errorf("%w: payload length %d, max %d", ErrOverflow, length, a.maxPayload))
		}
		a.count = 0
		if length == 0 {
			a.state = stateChecksum
		} else {
			a.state = statePayload
		}
	case statePayload:
		a.count++
		a.update(b)
		if a.count >= int(a.head[3]) {
			a.count, a.state = 0, stateChecksum
		}
	case stateChecksum:
		a.sum[a.count] = b
		a.count++
		if a.count < ChecksumLen {
			break
		}
		calculated := crc16.Complete(a.crc, crcTable)
		if sent := uint16(a.sum[0]) | uint16(a.sum[1])<<8; sent != calculated {
			return a.fail(fmt.Errorf("%w: received %04x, calculated %04x", ErrChecksumMismatch, sent, calculated))
		}
		a.count, a.state = 0, stateEnd
	}
	return FrameEvent{}
}

func (a *Assembler) update(b byte) {
	a.scratch[0] = b
	a.crc = crc16.Update(a.crc, a.scratch[:], crcTable)
}

func (a *Assembler) expired(now time.Time) bool {
	deadline, ok := a.Deadline()
	return ok && now.After(deadline)
}

func (a *Assembler) frameReady() FrameEvent {
	raw := a.buf
	a.Reset()
	return FrameEvent{Kind: EventFrameReady, Raw: raw}
}

func (a *Assembler) fail(err error) FrameEvent {
	a.Reset()
	return FrameEvent{Kind: EventError, Err: err}
}
