// Package notify presents the ongoing countdown to the user.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

const (
	AppName = "slumber"
	Title   = "Slumber Sleep Timer"
)

// Body is the notification text for a formatted remaining time.
func Body(remaining string) string { return "Time remaining: " + remaining }

// Presenter shows and updates a single ongoing notification.
type Presenter interface {
	Present(ctx context.Context, remaining string) error
	Dismiss(ctx context.Context) error
}

// Log writes presentations to a logger at debug level.
type Log struct {
	Logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (l *Log) Present(_ context.Context, remaining string) error {
	l.mu.Lock()
	l.last = remaining
	l.mu.Unlock()
	l.logger().Debug(Title, "body", Body(remaining))
	return nil
}

func (l *Log) Dismiss(context.Context) error {
	l.mu.Lock()
	l.last = ""
	l.mu.Unlock()
	l.logger().Debug(Title, "dismissed", true)
	return nil
}

// Last returns the most recently presented text, empty after Dismiss.
func (l *Log) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *Log) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
