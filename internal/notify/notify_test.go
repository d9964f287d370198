package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestBody(t *testing.T) {
	if got := Body("12:34"); got != "Time remaining: 12:34" {
		t.Fatalf("Body = %q", got)
	}
}

func TestLogPresenter(t *testing.T) {
	var buf bytes.Buffer
	l := &Log{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	ctx := context.Background()
	if err := l.Present(ctx, "05:00"); err != nil {
		t.Fatal(err)
	}
	if l.Last() != "05:00" {
		t.Fatalf("Last = %q", l.Last())
	}
	if !strings.Contains(buf.String(), "Time remaining: 05:00") {
		t.Fatalf("log output missing body: %s", buf.String())
	}
	_ = l.Dismiss(ctx)
	if l.Last() != "" {
		t.Fatalf("Last after dismiss = %q", l.Last())
	}
}
