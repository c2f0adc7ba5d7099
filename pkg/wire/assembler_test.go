package wire

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type asmTestSequence struct {
	in    []byte
	gap   time.Duration
	tick  bool
	final FrameEvent
	err   error
}

type asmTestSequenceBuilder struct {
	seq []asmTestSequence
}

func asmTestSequences() *asmTestSequenceBuilder {
	return &asmTestSequenceBuilder{}
}

func (b *asmTestSequenceBuilder) on(in ...byte) *asmTestSequenceBuilder {
	b.seq = append(b.seq, asmTestSequence{in: in})
	return b
}

func (b *asmTestSequenceBuilder) onFrame(src, dst Address, typ MessageType, payload ...byte) *asmTestSequenceBuilder {
	raw, err := Encode(src, dst, typ, payload)
	if err != nil {
		panic(err)
	}
	return b.on(raw...)
}

func (b *asmTestSequenceBuilder) after(gap time.Duration) *asmTestSequenceBuilder {
	b.seq[len(b.seq)-1].gap = gap
	return b
}

func (b *asmTestSequenceBuilder) tick(gap time.Duration) *asmTestSequenceBuilder {
	b.seq = append(b.seq, asmTestSequence{tick: true, gap: gap})
	return b
}

func (b *asmTestSequenceBuilder) frame(src, dst Address, typ MessageType, payload ...byte) *asmTestSequenceBuilder {
	raw, err := Encode(src, dst, typ, payload)
	if err != nil {
		panic(err)
	}
	b.seq[len(b.seq)-1].final = FrameEvent{Kind: EventFrameReady, Raw: raw}
	return b
}

func (b *asmTestSequenceBuilder) fails(err error) *asmTestSequenceBuilder {
	b.seq[len(b.seq)-1].final = FrameEvent{Kind: EventError}
	b.seq[len(b.seq)-1].err = err
	return b
}

func (b *asmTestSequenceBuilder) build() []asmTestSequence {
	return b.seq
}

func TestAssembler(t *testing.T) {
	testCases := []struct {
		name string
		seq  []asmTestSequence
	}{
		{
			name: "receive frames",
			seq: asmTestSequences().
				onFrame(2, 5, TypeRequest, 0x01, 0x02).frame(2, 5, TypeRequest, 0x01, 0x02).
				onFrame(0, 7, TypeData).frame(0, 7, TypeData).
				onFrame(Address(SOH), Address(EOT), MessageType(ESC), ESC, SOH, EOT).frame(Address(SOH), Address(EOT), MessageType(ESC), ESC, SOH, EOT).
				build(),
		},
		{
			name: "skip noise and preamble",
			seq: asmTestSequences().
				on(LF, LF, 0x00, 0xff, EOT, ESC, 0x21).
				onFrame(3, 4, TypeAck).frame(3, 4, TypeAck).
				build(),
		},
		{
			name: "resync on start delimiter",
			seq: asmTestSequences().
				on(SOH, 2, 5, 3, 2, 0x10).
				on(SOH).fails(ErrMalformedFrame).
				on(0x00, 0x07, 0x03, 0x00, 0xb1, 0x15, EOT).frame(0, 7, TypeData).
				build(),
		},
		{
			name: "resync on escaped start delimiter",
			seq: asmTestSequences().
				on(SOH, 2, 5, ESC).
				on(SOH).fails(ErrMalformedFrame).
				on(0x00, 0x07, 0x03, 0x00, 0xb1, 0x15, EOT).frame(0, 7, TypeData).
				build(),
		},
		{
			name: "truncated by end delimiter",
			seq: asmTestSequences().
				on(SOH, 2, 5, 3, 2, 0x10, EOT).fails(ErrMalformedFrame).
				onFrame(2, 5, TypeData, 0x10, 0x20).frame(2, 5, TypeData, 0x10, 0x20).
				build(),
		},
		{
			name: "checksum mismatch",
			seq: asmTestSequences().
				on(SOH, 0x00, 0x07, 0x03, 0x00, 0xb1, 0x16).fails(ErrChecksumMismatch).
				on(EOT).
				onFrame(0, 7, TypeData).frame(0, 7, TypeData).
				build(),
		},
		{
			name: "missing end delimiter",
			seq: asmTestSequences().
				on(SOH, 0x00, 0x07, 0x03, 0x00, 0xb1, 0x15, 0x00).fails(ErrMalformedFrame).
				build(),
		},
		{
			name: "invalid escape",
			seq: asmTestSequences().
				on(SOH, 0x00, ESC, 0x41).fails(ErrMalformedFrame).
				build(),
		},
		{
			name: "repeated escape",
			seq: asmTestSequences().
				on(SOH, 0x00, ESC, ESC).fails(ErrMalformedFrame).
				build(),
		},
		{
			name: "timeout on next byte",
			seq: asmTestSequences().
				on(SOH, 2, 5).
				on(3).after(time.Second).fails(ErrTimeout).
				onFrame(2, 5, TypeData, 0x30).frame(2, 5, TypeData, 0x30).
				build(),
		},
		{
			name: "timeout restarts with start delimiter",
			seq: asmTestSequences().
				on(SOH, 2, 5).
				on(SOH).after(time.Second).fails(ErrTimeout).
				on(0x00, 0x07, 0x03, 0x00, 0xb1, 0x15, EOT).frame(0, 7, TypeData).
				build(),
		},
		{
			name: "timeout on tick",
			seq: asmTestSequences().
				on(SOH, 2, 5).
				tick(50*time.Millisecond).
				tick(time.Second).fails(ErrTimeout).
				tick(time.Hour).
				onFrame(2, 5, TypeData).frame(2, 5, TypeData).
				build(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			asm := NewAssembler(MaxPayloadLen, 100*time.Millisecond)
			now := t0
			for n, s := range tc.seq {
				now = now.Add(s.gap)
				var ev FrameEvent
				if s.tick {
					ev = asm.Tick(now)
				} else {
					for i, b := range s.in {
						ev = asm.Push(b, now)
						if i+1 < len(s.in) {
							require.Equalf(t, EventIncomplete, ev.Kind, "seq[%d][%d] unexpected %v", n, i, ev.Err)
						}
						now = now.Add(time.Millisecond)
					}
				}
				require.Equalf(t, s.final.Kind, ev.Kind, "seq[%d] final mismatch: %v", n, ev.Err)
				require.Equalf(t, s.final.Raw, ev.Raw, "seq[%d] raw mismatch", n)
				if s.err != nil {
					require.Truef(t, errors.Is(ev.Err, s.err), "seq[%d] unexpected error %v", n, ev.Err)
				}
			}
		})
	}
}

func TestAssemblerResyncIsIdempotent(t *testing.T) {
	raw, err := Encode(9, 12, TypeData, []byte{ESC, 0x55, SOH, 0x66})
	require.NoError(t, err)

	fresh := NewAssembler(MaxPayloadLen, time.Second)
	fresh.Push(SOH, t0)

	for cut := 1; cut < len(raw); cut++ {
		asm := NewAssembler(MaxPayloadLen, time.Second)
		for _, b := range raw[:cut] {
			asm.Push(b, t0)
		}
		asm.Push(SOH, t0)
		require.Equalf(t, fresh, asm, "cut at %d", cut)
	}
}

func TestAssemblerReset(t *testing.T) {
	asm := NewAssembler(16, time.Second)
	asm.Push(SOH, t0)
	asm.Push(2, t0)
	require.True(t, asm.Receiving())
	deadline, ok := asm.Deadline()
	require.True(t, ok)
	require.Equal(t, t0.Add(time.Second), deadline)

	asm.Reset()
	require.False(t, asm.Receiving())
	_, ok = asm.Deadline()
	require.False(t, ok)
	require.Equal(t, NewAssembler(16, time.Second), asm)
}

func TestAssemblerOverflow(t *testing.T) {
	asm := NewAssembler(4, 0)
	require.Equal(t, 4, asm.MaxPayload())

	raw, err := Encode(1, 2, TypeData, []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	var ev FrameEvent
	for _, b := range raw {
		if ev = asm.Push(b, t0); ev.Kind != EventIncomplete {
			break
		}
	}
	require.Equal(t, EventError, ev.Kind)
	require.True(t, errors.Is(ev.Err, ErrOverflow))
	require.False(t, asm.Receiving())

	raw, err = Encode(1, 2, TypeData, []byte{ESC, ESC, ESC, ESC})
	require.NoError(t, err)
	require.True(t, len(raw) <= MaxFrameLen(4))
	for i, b := range raw {
		ev = asm.Push(b, t0)
		if i+1 < len(raw) {
			require.Equal(t, EventIncomplete, ev.Kind)
		}
	}
	require.Equal(t, EventFrameReady, ev.Kind)
	require.Equal(t, raw, ev.Raw)
}

func TestAssemblerTimeoutDisabled(t *testing.T) {
	asm := NewAssembler(0, 0)
	require.Equal(t, MaxPayloadLen, asm.MaxPayload())
	asm.Push(SOH, t0)
	require.Equal(t, EventIncomplete, asm.Tick(t0.Add(time.Hour)).Kind)
	require.True(t, asm.Receiving())
}

func TestAssemblerNoiseNeverYieldsFrame(t *testing.T) {
	rnd := rand.New(rand.NewSource(485))
	asm := NewAssembler(MaxPayloadLen, 0)
	alphabet := []byte{SOH, EOT, ESC, 0x21, 0x24, 0x3b, 0x00, 0x01, 0x02, 0xff}
	frames := 0
	for i := 0; i < 200000; i++ {
		var b byte
		if i%2 == 0 {
			b = alphabet[rnd.Intn(len(alphabet))]
		} else {
			b = byte(rnd.Intn(256))
		}
		ev := asm.Push(b, t0)
		if ev.Kind == EventFrameReady {
			// a frame can only be reported when its checksum is right
			_, err := DecodeFrame(ev.Raw)
			require.NoError(t, err)
			frames++
		}
	}
	require.True(t, frames < 5, "%d frames out of noise", frames)
}

func TestAssemblerFrameAfterTruncation(t *testing.T) {
	valid, err := Encode(2, 5, TypeRequest, []byte{0x01, 0x02})
	require.NoError(t, err)
	asm := NewAssembler(MaxPayloadLen, 50*time.Millisecond)

	now := t0
	truncated := valid[:len(valid)-3]
	for _, b := range truncated {
		require.Equal(t, EventIncomplete, asm.Push(b, now).Kind)
	}

	now = now.Add(time.Second)
	var events []FrameEvent
	for _, b := range valid {
		if ev := asm.Push(b, now); ev.Kind != EventIncomplete {
			events = append(events, ev)
		}
	}
	require.Len(t, events, 2)
	require.True(t, errors.Is(events[0].Err, ErrTimeout))
	require.Equal(t, EventFrameReady, events[1].Kind)
	f, err := DecodeFrame(events[1].Raw)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, f.Payload)
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "incomplete", EventIncomplete.String())
	require.Equal(t, "frame-ready", EventFrameReady.String())
	require.Equal(t, "error", EventError.String())
	require.Equal(t, "event(9)", EventKind(9).String())
}
