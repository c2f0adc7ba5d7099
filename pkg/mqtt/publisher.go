package mqtt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/simple485.go/pkg/slave"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Topics relative to the queue prefix, formatted with the slave address.
const (
	TopicMeta     = "slave/%d/meta"
	TopicEvents   = "slave/%d/events/%s"
	TopicMessages = "slave/%d/messages"
	TopicStats    = "slave/%d/stats"
	TopicControl  = "slave/%d/ctl/+"
)

// EventJSON is the published form of a slave.Event.
type EventJSON struct {
	Kind    string       `json:"kind"`
	Time    time.Time    `json:"time"`
	Address int          `json:"address"`
	Message *MessageJSON `json:"message,omitempty"`
	Peer    *int         `json:"peer,omitempty"`
	Type    string       `json:"type,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// MessageJSON is the published form of a slave.ReceivedMessage.
type MessageJSON struct {
	Sender      int    `json:"sender"`
	Destination int    `json:"destination"`
	Type        string `json:"type"`
	Payload     string `json:"payload"`
}

// Meta is retained on the meta topic while the slave is online.
type Meta struct {
	Address int    `json:"address"`
	Device  string `json:"device"`
	ID      string `json:"id,omitempty"`
}

// NewEventJSON converts an event.
func NewEventJSON(ev slave.Event) *EventJSON {
	out := &EventJSON{
		Kind:    ev.Kind.String(),
		Time:    ev.Time,
		Address: int(ev.Address),
	}
	if msg := ev.Message; msg != nil {
		out.Message = &MessageJSON{
			Sender:      int(msg.Sender),
			Destination: int(msg.Destination),
			Type:        msg.Type.String(),
			Payload:     hex.EncodeToString(msg.Payload),
		}
	}
	switch ev.Kind {
	case slave.EventResponseSent, slave.EventResponseDropped, slave.EventTransmitError:
		peer := int(ev.Peer)
		out.Peer = &peer
		out.Type = ev.Type.String()
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// Publisher implements slave.Observer by publishing events.
// Accepted messages go to the messages topic, everything else to
// the events topic of its kind.
type Publisher struct {
	Sink Sink
	// Address is the slave address used in topics.
	Address wire.Address
	Meta    Meta
}

// NewPublisher creates a Publisher which publishes meta on connect.
func NewPublisher(q *Queue, meta Meta) *Publisher {
	p := &Publisher{Sink: q, Address: wire.Address(meta.Address), Meta: meta}
	q.OnConnect = func(*Queue) { p.PublishMeta() }
	return p
}

// Observe implements slave.Observer.
func (p *Publisher) Observe(ev slave.Event) {
	topic := fmt.Sprintf(TopicEvents, p.Address, ev.Kind)
	if ev.Kind == slave.EventMessage {
		topic = fmt.Sprintf(TopicMessages, p.Address)
	}
	p.publish(topic, NewEventJSON(ev), false)
}

// PublishMeta publishes the retained meta.
func (p *Publisher) PublishMeta() {
	p.publish(fmt.Sprintf(TopicMeta, p.Address), &p.Meta, true)
}

// ClearMeta removes the retained meta.
func (p *Publisher) ClearMeta() paho.Token {
	return p.Sink.PubWith(fmt.Sprintf(TopicMeta, p.Address), nil, 1, true)
}

// PublishStats publishes counters.
func (p *Publisher) PublishStats(stats slave.Stats) {
	p.publish(fmt.Sprintf(TopicStats, p.Address), stats.Map(), false)
}

func (p *Publisher) publish(topic string, v interface{}, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("encode %s: %v", topic, err)
		return
	}
	var qos byte
	if retain {
		qos = 1
	}
	p.Sink.PubWith(topic, payload, qos, retain)
}

// StatsReporter periodically publishes counters.
type StatsReporter struct {
	Publisher *Publisher
	Interval  time.Duration
	Stats     func() slave.Stats
}

// Run implements framework.Runnable.
func (r *StatsReporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Publisher.PublishStats(r.Stats())
			return ctx.Err()
		case <-ticker.C:
			r.Publisher.PublishStats(r.Stats())
		}
	}
}
