// Package slave implements a bus slave: it assembles frames from received
// bytes, dispatches the accepted ones to a Handler and sends the optional
// response once the bus turnaround allows.
//
// A Slave is not safe for concurrent use. Feed, Tick and Respond must be
// called from a single execution context, e.g. serial.Link.
package slave

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/robotalks/simple485.go/pkg/logging"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Driver is the serial line used to send responses.
type Driver interface {
	io.Writer
	// SetTransmit enables or disables the local bus transmitter.
	SetTransmit(on bool) error
}

// Slave is a device on the bus.
type Slave struct {
	cfg      Config
	address  wire.Address
	handler  Handler
	driver   Driver
	log      logging.Logger
	asm      *wire.Assembler
	counters counters

	lastActivity time.Time
	request      *requestContext
	pending      *pendingResponse
	txBuf        []byte
}

// requestContext only exists while HandleUnicast runs.
type requestContext struct {
	sender    wire.Address
	expires   time.Time
	responded bool
}

type pendingResponse struct {
	frame   []byte
	peer    wire.Address
	typ     wire.MessageType
	expires time.Time
	retryAt time.Time
}

// New creates a Slave.
func New(cfg Config, h Handler, drv Driver) (*Slave, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: handler required", ErrInvalidConfig)
	}
	if drv == nil {
		return nil, fmt.Errorf("%w: driver required", ErrInvalidConfig)
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &Slave{
		cfg:     cfg,
		address: cfg.Address,
		handler: h,
		driver:  drv,
		log:     cfg.Logger,
		asm:     wire.NewAssembler(cfg.MaxPayload, cfg.FrameTimeout),
		txBuf:   make([]byte, 0, cfg.Preamble+wire.MaxFrameLen(cfg.MaxPayload)),
	}
	s.log.Debugf("initialized with address %s", s.address)
	return s, nil
}

// Address returns the local address.
func (s *Slave) Address() wire.Address {
	return s.address
}

// SetAddress changes the local address. Frames already in progress are
// filtered with the new address.
func (s *Slave) SetAddress(addr wire.Address) error {
	if !addr.IsValidSlave() {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	if addr != s.address {
		s.log.Infof("changing address from %s to %s", s.address, addr)
		s.address = addr
	}
	return nil
}

// Counters returns a snapshot of the statistics.
// It is safe to call from any goroutine.
func (s *Slave) Counters() Stats {
	return s.counters.getAll()
}

// ResetCounters clears the statistics.
func (s *Slave) ResetCounters() {
	s.counters.rstAll()
}

// PendingResponse checks if a response is waiting for the bus.
func (s *Slave) PendingResponse() bool {
	return s.pending != nil
}

// LastActivity returns when the last byte was received or sent.
func (s *Slave) LastActivity() time.Time {
	return s.lastActivity
}

// Feed processes one byte received from the bus at now.
func (s *Slave) Feed(b byte, now time.Time) {
	if b == 0 && !s.asm.Receiving() {
		// the line idles as NUL when a transmitter releases the bus
		s.flush(now)
		return
	}
	s.counters.inc(CntBytes)
	s.lastActivity = now
	s.handleEvent(s.asm.Push(b, now), now)
	s.flush(now)
}

// Tick checks timeouts and sends the pending response when the bus is ready.
func (s *Slave) Tick(now time.Time) {
	s.handleEvent(s.asm.Tick(now), now)
	s.flush(now)
}

// NextDeadline returns when Tick must be called next.
func (s *Slave) NextDeadline() (time.Time, bool) {
	deadline, ok := s.asm.Deadline()
	if p := s.pending; p != nil {
		t := p.expires
		if !s.asm.Receiving() {
			if ready := s.readyAt(p); ready.Before(t) {
				t = ready
			}
		}
		if !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	return deadline, ok
}

// Respond queues a response to the request being handled.
// It is only valid inside Handler.HandleUnicast and for the sender of the
// request. All timing uses the timestamps passed to Feed and Tick; a queued
// response not started within the response window is dropped.
func (s *Slave) Respond(dst wire.Address, typ wire.MessageType, payload []byte) error {
	req := s.request
	if req == nil {
		return ErrNoActiveRequest
	}
	return s.respond(req, dst, typ, payload)
}

func (s *Slave) respond(req *requestContext, dst wire.Address, typ wire.MessageType, payload []byte) error {
	if req.responded {
		return ErrResponseAlreadySent
	}
	if dst != req.sender {
		return fmt.Errorf("%w: destination %s, request from %s", ErrNoActiveRequest, dst, req.sender)
	}
	if len(payload) > s.cfg.MaxPayload {
		return fmt.Errorf("%w: %d bytes, max %d", wire.ErrPayloadTooLarge, len(payload), s.cfg.MaxPayload)
	}
	buf := s.txBuf[:0]
	for i := 0; i < s.cfg.Preamble; i++ {
		buf = append(buf, wire.LF)
	}
	buf, err := wire.AppendFrame(buf, s.address, dst, typ, payload)
	if err != nil {
		return err
	}
	req.responded = true
	s.pending = &pendingResponse{
		frame:   buf,
		peer:    dst,
		typ:     typ,
		expires: req.expires,
	}
	s.log.Debugf("response queued to %s type %s, %d bytes", dst, typ, len(buf))
	return nil
}

func (s *Slave) handleEvent(ev wire.FrameEvent, now time.Time) {
	switch ev.Kind {
	case wire.EventFrameReady:
		s.handleFrame(ev.Raw, now)
	case wire.EventError:
		s.frameError(ev.Err, now)
	}
}

func (s *Slave) frameError(err error, now time.Time) {
	switch {
	case errors.Is(err, wire.ErrChecksumMismatch):
		s.counters.inc(CntChecksumErr)
	case errors.Is(err, wire.ErrOverflow):
		s.counters.inc(CntOverflow)
	case errors.Is(err, wire.ErrTimeout):
		s.counters.inc(CntTimeout)
	default:
		s.counters.inc(CntMalformed)
	}
	s.log.Warningf("frame dropped: %v", err)
	s.observe(Event{Kind: EventFrameError, Time: now, Err: err})
}

func (s *Slave) handleFrame(raw []byte, now time.Time) {
	s.counters.inc(CntFrames)
	f, err := wire.DecodeFrame(raw)
	if err != nil {
		s.frameError(err, now)
		return
	}
	if !Accept(f, s.address) {
		s.counters.inc(CntForeign)
		s.log.Debugf("ignored frame for %s", f.Destination)
		return
	}
	msg := ReceivedMessage{
		Sender:      f.Source,
		Destination: f.Destination,
		Type:        f.Type,
		Payload:     f.Payload,
		ReceivedAt:  now,
	}
	if s.cfg.MasterOnly && f.Source != wire.MasterAddress {
		s.counters.inc(CntNonMaster)
		s.log.Warningf("dropped message from non-master %s", f.Source)
		s.observe(Event{Kind: EventNonMasterDropped, Time: now, Message: &msg})
		return
	}
	s.counters.inc(CntAccepted)
	s.log.Infof("received %s", &msg)
	s.observe(Event{Kind: EventMessage, Time: now, Message: &msg})
	if msg.IsBroadcast() {
		s.dispatchBroadcast(msg, now)
	} else {
		s.dispatchUnicast(msg, now)
	}
}

func (s *Slave) dispatchBroadcast(msg ReceivedMessage, now time.Time) {
	s.counters.inc(CntBroadcast)
	s.invoke(msg, now, func() {
		if h, ok := s.handler.(BroadcastHandler); ok {
			h.HandleBroadcast(msg)
			return
		}
		if resp := s.handler.HandleUnicast(msg); resp != nil {
			s.log.Warningf("discarded response of type %s to broadcast", resp.Type)
		}
	})
}

func (s *Slave) dispatchUnicast(msg ReceivedMessage, now time.Time) {
	if p := s.pending; p != nil {
		s.dropPending(p, fmt.Errorf("superseded by request from %s", msg.Sender), now)
	}
	req := &requestContext{sender: msg.Sender, expires: now.Add(s.cfg.ResponseWindow)}
	s.request = req
	defer func() { s.request = nil }()
	s.invoke(msg, now, func() {
		if resp := s.handler.HandleUnicast(msg); resp != nil {
			if err := s.respond(req, msg.Sender, resp.Type, resp.Payload); err != nil {
				s.log.Warningf("response to %s not sent: %v", msg.Sender, err)
			}
		}
	})
}

func (s *Slave) invoke(msg ReceivedMessage, now time.Time, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			s.counters.inc(CntHandlerPanic)
			s.log.Errorf("handling %s: %v", &msg, err)
			s.observe(Event{Kind: EventHandlerPanic, Time: now, Message: &msg, Err: err})
		}
	}()
	fn()
}

func (s *Slave) readyAt(p *pendingResponse) time.Time {
	ready := s.lastActivity.Add(s.cfg.TurnaroundDelay)
	if p.retryAt.After(ready) {
		return p.retryAt
	}
	return ready
}

func (s *Slave) flush(now time.Time) {
	p := s.pending
	if p == nil {
		return
	}
	if !now.Before(p.expires) {
		s.dropPending(p, fmt.Errorf("response window of %v elapsed", s.cfg.ResponseWindow), now)
		return
	}
	if s.asm.Receiving() || now.Before(s.readyAt(p)) {
		return
	}
	if err := s.transmit(p.frame); err != nil {
		s.counters.inc(CntTransmitErr)
		s.observe(Event{Kind: EventTransmitError, Time: now, Peer: p.peer, Type: p.typ, Err: err})
		var txErr *TransmitError
		if !errors.As(err, &txErr) || txErr.Op != "disable" {
			p.retryAt = now.Add(s.cfg.TurnaroundDelay)
			s.log.Errorf("send to %s failed, will retry: %v", p.peer, err)
			return
		}
		// the frame is on the wire already
		s.log.Errorf("send to %s: %v", p.peer, err)
	}
	s.pending = nil
	s.lastActivity = now
	s.counters.inc(CntResponsesSent)
	s.log.Debugf("response sent to %s type %s", p.peer, p.typ)
	s.observe(Event{Kind: EventResponseSent, Time: now, Peer: p.peer, Type: p.typ})
}

func (s *Slave) transmit(frame []byte) (err error) {
	if err = s.driver.SetTransmit(true); err != nil {
		return &TransmitError{Op: "enable", Err: err}
	}
	defer func() {
		if rerr := s.driver.SetTransmit(false); rerr != nil && err == nil {
			err = &TransmitError{Op: "disable", Err: rerr}
		}
	}()
	if _, err = s.driver.Write(frame); err != nil {
		return &TransmitError{Op: "write", Err: err}
	}
	return nil
}

func (s *Slave) dropPending(p *pendingResponse, reason error, now time.Time) {
	s.pending = nil
	s.counters.inc(CntResponsesDropped)
	s.log.Warningf("response to %s dropped: %v", p.peer, reason)
	s.observe(Event{Kind: EventResponseDropped, Time: now, Peer: p.peer, Type: p.typ, Err: reason})
}

func (s *Slave) observe(ev Event) {
	if o := s.cfg.Observer; o != nil {
		ev.Address = s.address
		o.Observe(ev)
	}
}
