package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"

	"github.com/loykin/slumber/internal/history"
)

func TestNATSSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	if err != nil {
		t.Skipf("Failed to start NATS container: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()
	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	sub, err := natsgo.Connect(url)
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()
	msgs := make(chan *natsgo.Msg, 4)
	if _, err := sub.ChanSubscribe(DefaultSubject+".>", msgs); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	sink, err := New(url, "")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(ctx, history.Event{Type: history.EventExpired, RunID: "r", InitialDurationMinutes: 45}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case m := <-msgs:
		if m.Subject != DefaultSubject+".expired" {
			t.Fatalf("unexpected subject %s", m.Subject)
		}
		var e history.Event
		if err := json.Unmarshal(m.Data, &e); err != nil || e.RunID != "r" {
			t.Fatalf("bad payload %s: %v", m.Data, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSubject(t *testing.T) {
	s := &Sink{subject: "a.b"}
	if got := s.Subject(history.EventPaused); got != "a.b.paused" {
		t.Fatalf("Subject = %q", got)
	}
}
