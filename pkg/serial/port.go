// Package serial connects a slave to an RS-485 transceiver on a serial port.
package serial

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	goserial "go.bug.st/serial"
)

// BitsPerByte is the number of bits on the line per byte, including start
// and stop bits.
const BitsPerByte = 10

// DefaultToggleDelay is the time the transceiver needs to switch direction.
const DefaultToggleDelay = 20 * time.Millisecond

// drainMargin stretches the computed transmission time when the port can't drain.
const drainMargin = 1.1

// PortConfig configures a serial port.
type PortConfig struct {
	Device   string
	BaudRate int
	DataBits int
	// Parity is one of "none", "even", "odd", "mark", "space".
	Parity   string
	StopBits int
	// RTSDirection drives the transceiver's driver enable with RTS.
	RTSDirection bool
	// InvertRTS makes RTS low while transmitting.
	InvertRTS bool
	// ToggleDelay is waited after enabling the transmitter.
	ToggleDelay time.Duration
	// ReadTimeout bounds a single Read, 0 blocks until data arrives.
	ReadTimeout time.Duration
}

// DefaultPortConfig is a 9600 8N1 port using RTS for direction.
var DefaultPortConfig = PortConfig{
	BaudRate:     9600,
	DataBits:     8,
	Parity:       "none",
	StopBits:     1,
	RTSDirection: true,
	ToggleDelay:  DefaultToggleDelay,
	ReadTimeout:  100 * time.Millisecond,
}

// Mode converts the config into the port mode.
func (c *PortConfig) Mode() (*goserial.Mode, error) {
	mode := &goserial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}
	if mode.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	switch strings.ToLower(c.Parity) {
	case "", "n", "none":
		mode.Parity = goserial.NoParity
	case "e", "even":
		mode.Parity = goserial.EvenParity
	case "o", "odd":
		mode.Parity = goserial.OddParity
	case "m", "mark":
		mode.Parity = goserial.MarkParity
	case "s", "space":
		mode.Parity = goserial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", c.Parity)
	}
	switch c.StopBits {
	case 0, 1:
		mode.StopBits = goserial.OneStopBit
	case 2:
		mode.StopBits = goserial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", c.StopBits)
	}
	return mode, nil
}

// TransmitTime calculates how long n bytes take on the line.
func TransmitTime(n, baudRate int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	return time.Duration(n) * BitsPerByte * time.Second / time.Duration(baudRate)
}

// Port is a serial port driving an RS-485 transceiver.
// It implements slave.Driver.
type Port struct {
	conf  PortConfig
	port  goserial.Port
	sleep func(time.Duration)
}

// Open opens the serial device.
func Open(conf PortConfig) (*Port, error) {
	mode, err := conf.Mode()
	if err != nil {
		return nil, err
	}
	sp, err := goserial.Open(conf.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.Device, err)
	}
	p, err := NewPort(sp, conf)
	if err != nil {
		sp.Close()
		return nil, err
	}
	glog.Infof("opened %s at %d baud", conf.Device, conf.BaudRate)
	return p, nil
}

// NewPort wraps an opened port. The transmitter is disabled.
func NewPort(sp goserial.Port, conf PortConfig) (*Port, error) {
	p := &Port{conf: conf, port: sp, sleep: time.Sleep}
	if conf.ReadTimeout > 0 {
		if err := sp.SetReadTimeout(conf.ReadTimeout); err != nil {
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	if err := p.setRTS(false); err != nil {
		return nil, err
	}
	return p, nil
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes b and waits until it's physically sent.
func (p *Port) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	if err != nil {
		return n, err
	}
	if err = p.port.Drain(); err != nil {
		d := time.Duration(float64(TransmitTime(n, p.conf.BaudRate)) * drainMargin)
		glog.V(2).Infof("drain %s: %v, waiting %v", p.conf.Device, err, d)
		p.sleep(d)
	}
	return n, nil
}

// SetTransmit enables or disables the transmitter.
func (p *Port) SetTransmit(on bool) error {
	if err := p.setRTS(on); err != nil {
		return err
	}
	if on && p.conf.RTSDirection {
		p.sleep(p.conf.ToggleDelay)
	}
	return nil
}

func (p *Port) setRTS(on bool) error {
	if !p.conf.RTSDirection {
		return nil
	}
	if err := p.port.SetRTS(on != p.conf.InvertRTS); err != nil {
		return fmt.Errorf("set RTS: %w", err)
	}
	return nil
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.port.Close()
}
