// Package eventbus publishes solve outcome events on NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when NATSConfig.Subject is empty.
const DefaultSubject = "turnstile.events.solved"

var ErrInvalidEvent = errors.New("invalid event")

// NATSBus publishes task events on one NATS core subject.
type NATSBus struct {
	nc      *nats.Conn
	subject string
}

type NATSConfig struct {
	URL     string
	Subject string
	Name    string
}

func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	name := cfg.Name
	if name == "" {
		name = "turnstile-solver"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSBus{nc: nc, subject: subject}, nil
}

// Subject returns the subject events are published on.
func (b *NATSBus) Subject() string {
	return b.subject
}

func (b *NATSBus) Publish(ctx context.Context, evt Event) error {
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe calls handler for every decodable event until ctx is done.
func (b *NATSBus) Subscribe(ctx context.Context, handler func(Event)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		if evt, err := Decode(msg.Data); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

// Close drains pending publishes and closes the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}

// Encode validates evt and marshals it for the wire.
func Encode(evt Event) ([]byte, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}

// Decode unmarshals and validates an event from the wire.
func Decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, err
	}
	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}
