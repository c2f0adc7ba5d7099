package slave

import (
	"fmt"
	"sync"
)

// Counter identifies a statistic maintained by a Slave.
type Counter int

// Counters.
const (
	CntBytes Counter = iota
	CntFrames
	CntAccepted
	CntForeign
	CntBroadcast
	CntChecksumErr
	CntMalformed
	CntOverflow
	CntTimeout
	CntResponsesSent
	CntResponsesDropped
	CntTransmitErr
	CntNonMaster
	CntHandlerPanic

	CntNum = iota
)

var counterNames = [CntNum]string{
	"bytes",
	"frames",
	"accepted",
	"foreign",
	"broadcast",
	"checksum_errors",
	"malformed",
	"overflow",
	"timeouts",
	"responses_sent",
	"responses_dropped",
	"transmit_errors",
	"non_master",
	"handler_panics",
}

func (c Counter) String() string {
	if c >= 0 && c < CntNum {
		return counterNames[c]
	}
	return fmt.Sprintf("counter(%d)", int(c))
}

// Stats is a snapshot of all counters, indexed by Counter.
type Stats []uint64

// Get returns a single counter, 0 if out of range.
func (s Stats) Get(c Counter) uint64 {
	if c < 0 || int(c) >= len(s) {
		return 0
	}
	return s[c]
}

// Map returns the counters keyed by name.
func (s Stats) Map() map[string]uint64 {
	m := make(map[string]uint64, len(s))
	for n, v := range s {
		m[Counter(n).String()] = v
	}
	return m
}

// counters may be read from other goroutines while the slave is running.
type counters struct {
	sync.Mutex
	ca [CntNum]uint64
}

func (c *counters) inc(cnt Counter) {
	c.Lock()
	c.ca[cnt]++
	c.Unlock()
}

func (c *counters) getAll() Stats {
	c.Lock()
	defer c.Unlock()
	r := make(Stats, len(c.ca))
	copy(r, c.ca[:])
	return r
}

func (c *counters) rstAll() {
	c.Lock()
	defer c.Unlock()
	c.ca = [CntNum]uint64{}
}
