// Package env builds a running slave from command line flags and
// environment variables.
package env

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/simple485.go/pkg/device"
	fx "github.com/robotalks/simple485.go/pkg/framework"
	"github.com/robotalks/simple485.go/pkg/logging"
	"github.com/robotalks/simple485.go/pkg/mqtt"
	"github.com/robotalks/simple485.go/pkg/serial"
	"github.com/robotalks/simple485.go/pkg/slave"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Config provides options to run a slave on a serial port.
type Config struct {
	Port    serial.PortConfig
	Address uint
	Device  string

	FrameTimeout    time.Duration
	TurnaroundDelay time.Duration
	ResponseWindow  time.Duration
	MasterOnly      bool
	Preamble        int

	// MQTTBrokerURL optionally specifies the MQTT broker to publish diagnostics.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	StatsInterval time.Duration
}

var defaultConfig = Config{
	Port:            serial.DefaultPortConfig,
	Address:         1,
	Device:          "echo",
	FrameTimeout:    slave.DefaultFrameTimeout,
	TurnaroundDelay: slave.DefaultTurnaroundDelay,
	ResponseWindow:  slave.DefaultResponseWindow,
	MasterOnly:      true,
	Preamble:        3,
	StatsInterval:   10 * time.Second,
}

func init() {
	defaultConfig.Port.Device = "/dev/ttyUSB0"
	if val := os.Getenv("SIMPLE485_PORT"); val != "" {
		defaultConfig.Port.Device = val
	}
	if val := os.Getenv("SIMPLE485_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port.Device, "port", defaultConfig.Port.Device, "Serial device")
	flag.IntVar(&defaultConfig.Port.BaudRate, "baud", defaultConfig.Port.BaudRate, "Baud rate")
	flag.StringVar(&defaultConfig.Port.Parity, "parity", defaultConfig.Port.Parity, "Parity: none, even, odd")
	flag.IntVar(&defaultConfig.Port.StopBits, "stop-bits", defaultConfig.Port.StopBits, "Stop bits")
	flag.BoolVar(&defaultConfig.Port.RTSDirection, "rts", defaultConfig.Port.RTSDirection, "Use RTS as transceiver direction")
	flag.BoolVar(&defaultConfig.Port.InvertRTS, "invert-rts", defaultConfig.Port.InvertRTS, "RTS low while transmitting")
	flag.DurationVar(&defaultConfig.Port.ToggleDelay, "toggle-delay", defaultConfig.Port.ToggleDelay, "Transceiver toggle time")
	flag.UintVar(&defaultConfig.Address, "addr", defaultConfig.Address, "Slave address (1-254)")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device,
		"Device behavior: "+strings.Join(device.Names(), ", "))
	flag.DurationVar(&defaultConfig.FrameTimeout, "frame-timeout", defaultConfig.FrameTimeout, "Inter-byte timeout")
	flag.DurationVar(&defaultConfig.TurnaroundDelay, "turnaround", defaultConfig.TurnaroundDelay, "Bus silence before responding")
	flag.DurationVar(&defaultConfig.ResponseWindow, "response-window", defaultConfig.ResponseWindow, "Deadline to start a response")
	flag.BoolVar(&defaultConfig.MasterOnly, "master-only", defaultConfig.MasterOnly, "Only accept messages from the master")
	flag.IntVar(&defaultConfig.Preamble, "preamble", defaultConfig.Preamble, "LF bytes sent before a response")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.DurationVar(&defaultConfig.StatsInterval, "stats-interval", defaultConfig.StatsInterval, "Interval to publish counters")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// SlaveConfig converts to slave.Config.
func (c *Config) SlaveConfig() (slave.Config, error) {
	if c.Address > uint(wire.LastNodeAddress) {
		return slave.Config{}, fmt.Errorf("%w: %d", slave.ErrInvalidAddress, c.Address)
	}
	addr := wire.Address(c.Address)
	return slave.Config{
		Address:         addr,
		FrameTimeout:    c.FrameTimeout,
		TurnaroundDelay: c.TurnaroundDelay,
		ResponseWindow:  c.ResponseWindow,
		MasterOnly:      c.MasterOnly,
		Preamble:        c.Preamble,
	}, nil
}

// Env is a slave attached to its serial port.
type Env struct {
	Config    *Config
	Port      *serial.Port
	Slave     *slave.Slave
	Link      *serial.Link
	Queue     *mqtt.Queue
	Publisher *mqtt.Publisher
}

// NewEnv opens the port and creates the slave.
func (c *Config) NewEnv() (*Env, error) {
	sc, err := c.SlaveConfig()
	if err != nil {
		return nil, err
	}
	handler, err := device.New(c.Device, logging.Glog(c.Device))
	if err != nil {
		return nil, err
	}

	env := &Env{Config: c}
	if c.MQTTBrokerURL != "" {
		opts, topicPrefix, err := mqtt.ClientOptionsFromURL(c.MQTTBrokerURL)
		if err != nil {
			return nil, fmt.Errorf("create MQTT queue error: %w", err)
		}
		opts.SetBinaryWill(topicPrefix+fmt.Sprintf(mqtt.TopicMeta, sc.Address), nil, 1, true)
		if opts.ClientID == "" {
			opts.SetClientID(fmt.Sprintf("simple485:%d", sc.Address))
		}
		env.Queue = mqtt.NewQueue(opts, topicPrefix)
		meta := mqtt.Meta{Address: int(sc.Address), Device: c.Device}
		if id, err := device.MachineID("simple485"); err == nil {
			meta.ID = id
		}
		env.Publisher = mqtt.NewPublisher(env.Queue, meta)
		sc.Observer = env.Publisher
	}

	if env.Port, err = serial.Open(c.Port); err != nil {
		return nil, err
	}
	if env.Slave, err = slave.New(sc, handler, env.Port); err != nil {
		env.Port.Close()
		return nil, err
	}
	env.Link = serial.NewLink(env.Port, env.Slave)
	if env.Queue != nil {
		ctl := &mqtt.Controller{Target: env.Slave, Invoker: env.Link}
		ctl.Subscribe(env.Queue, sc.Address)
	}
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// Runnables returns everything to run in a framework.Runner.
func (e *Env) Runnables() []fx.Runnable {
	runnables := []fx.Runnable{fx.NamedRun("link", fx.RunnableFunc(e.run))}
	if e.Queue != nil {
		runnables = append(runnables,
			fx.NamedRun("mqtt", fx.RunnableFunc(e.runMQTT)),
			fx.NamedRun("stats", &mqtt.StatsReporter{
				Publisher: e.Publisher,
				Interval:  e.Config.StatsInterval,
				Stats:     e.Slave.Counters,
			}))
	}
	return runnables
}

func (e *Env) run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, e.Port, func() error {
		return e.Link.Run(ctx)
	})
}

func (e *Env) runMQTT(ctx context.Context) error {
	if err := e.Queue.ConnectAndWait(0); err != nil {
		glog.Warningf("MQTT connect error: %v", err)
	}
	<-ctx.Done()
	e.Publisher.ClearMeta().WaitTimeout(time.Second)
	e.Queue.Close()
	return nil
}
