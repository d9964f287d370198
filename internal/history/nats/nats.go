// Package nats publishes history events as JSON on a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	natsgo "github.com/nats-io/nats.go"

	"github.com/loykin/slumber/internal/history"
)

const DefaultSubject = "slumber.timer.events"

type Sink struct {
	conn    *natsgo.Conn
	subject string
}

func New(url, subject string) (*Sink, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := natsgo.Connect(url, natsgo.Name("slumber-history"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Sink{conn: conn, subject: subject}, nil
}

// Subject returns the subject events are published on, with the event type
// appended, e.g. "slumber.timer.events.expired".
func (s *Sink) Subject(t history.EventType) string {
	return s.subject + "." + string(t)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.conn.Publish(s.Subject(e.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return s.conn.FlushWithContext(ctx)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
