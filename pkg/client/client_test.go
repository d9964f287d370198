package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/loykin/slumber/internal/media"
	"github.com/loykin/slumber/internal/server"
	"github.com/loykin/slumber/internal/timer"
)

func newDaemon(t *testing.T) (*Client, *timer.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := timer.New(timer.WithClock(clockwork.NewFakeClock()))
	h := server.NewRouter(eng, media.NewBoard(), "/api", nil).Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		_ = eng.Shutdown(context.Background())
	})
	c, err := New(Config{BaseURL: srv.URL + "/api/", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, eng
}

func TestClientTimerControls(t *testing.T) {
	c, _ := newDaemon(t)
	ctx := context.Background()

	if !c.IsReachable(ctx) {
		t.Fatalf("daemon should be reachable")
	}
	st, err := c.State(ctx)
	if err != nil || !st.IsIdle() || st.RemainingDisplay != "30:00" || st.Phase != "idle" {
		t.Fatalf("initial state %+v %v", st, err)
	}

	res, err := c.SetDuration(ctx, 15)
	if err != nil || !res.Applied || res.State.RemainingDisplay != "15:00" {
		t.Fatalf("set duration %+v %v", res, err)
	}

	st, err = c.Start(ctx, nil)
	if err != nil || !st.IsRunning || st.RemainingSeconds != 900 {
		t.Fatalf("start %+v %v", st, err)
	}
	res, err = c.SetDuration(ctx, 5)
	if err != nil || res.Applied {
		t.Fatalf("dial must not change while running %+v %v", res, err)
	}

	st, err = c.Pause(ctx)
	if err != nil || !st.IsPaused || st.RemainingSeconds != 900 {
		t.Fatalf("pause %+v %v", st, err)
	}
	st, err = c.Cancel(ctx)
	if err != nil || !st.IsIdle() || st.RemainingDisplay != "15:00" {
		t.Fatalf("cancel %+v %v", st, err)
	}

	m := int64(3)
	st, err = c.Start(ctx, &m)
	if err != nil || st.RemainingSeconds != 180 || st.InitialDurationMinutes != 3 {
		t.Fatalf("start 3 %+v %v", st, err)
	}
}

func TestClientControls(t *testing.T) {
	c, _ := newDaemon(t)
	ctx := context.Background()
	pc, err := c.PostControl(ctx, PostedControl{
		Source:  "mpv",
		Actions: []Action{{Label: "Stop", Role: "stop", URL: "http://127.0.0.1:1/stop"}},
	})
	if err != nil || pc.ID == "" || pc.Actions[0].Role != "stop" {
		t.Fatalf("post %+v %v", pc, err)
	}
	list, err := c.Controls(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list %+v %v", list, err)
	}
	if err := c.RemoveControl(ctx, pc.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	err = c.RemoveControl(ctx, pc.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}

	_, err = c.PostControl(ctx, PostedControl{Source: "mpv"})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

func TestClientWatch(t *testing.T) {
	c, eng := newDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan State, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(st State) error {
			got <- st
			if st.IsRunning {
				return errStop
			}
			return nil
		})
	}()

	select {
	case st := <-got:
		if !st.IsIdle() {
			t.Fatalf("first watched state should be idle: %+v", st)
		}
	case <-ctx.Done():
		t.Fatalf("no initial state")
	}
	eng.Start(2)
	if err := <-done; !errors.Is(err, errStop) {
		t.Fatalf("watch returned %v", err)
	}
}

var errStop = errors.New("stop watching")

func TestClientUnreachable(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.IsReachable(context.Background()) {
		t.Fatalf("nothing listens on port 1")
	}
	if _, err := c.State(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClientTLSConfigErrors(t *testing.T) {
	_, err := New(Config{TLS: &TLSClientConfig{Enabled: true, CACert: "/nonexistent/ca.crt"}})
	if err == nil {
		t.Fatalf("expected CA load error")
	}
	c, err := New(Config{Insecure: true})
	if err != nil || c.BaseURL() != DefaultBaseURL {
		t.Fatalf("insecure config: %v", err)
	}
}
