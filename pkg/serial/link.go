package serial

import (
	"context"
	"io"
	"time"
)

// Receiver consumes received bytes, e.g. *slave.Slave.
type Receiver interface {
	Feed(b byte, now time.Time)
	Tick(now time.Time)
	NextDeadline() (time.Time, bool)
}

// Link pumps bytes from a reader into a Receiver.
// All calls into the Receiver are made from the goroutine running Run.
type Link struct {
	Reader   io.Reader
	Receiver Receiver
	// Now is the clock passed to the Receiver, defaults to time.Now.
	Now func() time.Time

	invokeCh chan func()
}

// NewLink creates a Link.
func NewLink(r io.Reader, rcv Receiver) *Link {
	return &Link{Reader: r, Receiver: rcv, Now: time.Now, invokeCh: make(chan func())}
}

// Invoke runs fn on the goroutine running Run and waits for it,
// so fn may safely access the Receiver. fn is skipped if ctx is done before
// the loop picks it up; once started, Invoke waits for fn to return and
// reports success.
func (l *Link) Invoke(ctx context.Context, fn func()) error {
	doneCh := make(chan error, 1)
	run := func() {
		if err := ctx.Err(); err != nil {
			doneCh <- err
			return
		}
		fn()
		doneCh <- nil
	}
	select {
	case l.invokeCh <- run:
		return <-doneCh
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run implements framework.Runnable.
func (l *Link) Run(ctx context.Context) error {
	byteCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.readLoop(subCtx, byteCh, errCh)
	for {
		var timer <-chan time.Time
		if deadline, ok := l.Receiver.NextDeadline(); ok {
			timer = time.After(deadline.Sub(l.now()))
		}
		select {
		case data := <-byteCh:
			now := l.now()
			for _, b := range data {
				l.Receiver.Feed(b, now)
			}
		case fn := <-l.invokeCh:
			fn()
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-timer:
			l.Receiver.Tick(l.now())
		}
	}
}

func (l *Link) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Link) readLoop(ctx context.Context, byteCh chan []byte, errCh chan error) {
	buf := make([]byte, 64)
	for {
		n, err := l.Reader.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			// read timeout
			if ctx.Err() != nil {
				return
			}
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case byteCh <- data:
		case <-ctx.Done():
			return
		}
	}
}
