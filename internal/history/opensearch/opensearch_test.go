package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/slumber/internal/history"
)

type captured struct {
	method, path, user, pass string
	body                     []byte
}

func newIndexServer(t *testing.T, status int, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.user, got.pass, _ = r.BasicAuth()
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendPutsDocument(t *testing.T) {
	var got captured
	srv := newIndexServer(t, http.StatusCreated, &got)

	sink := New(srv.URL+"/", "timer-history")
	event := history.Event{
		Type:                   history.EventEnforced,
		OccurredAt:             time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC),
		RunID:                  "run-9",
		InitialDurationMinutes: 45,
		Enforcement:            &history.Enforcement{Sweeps: 13, Sent: 3},
	}
	require.NoError(t, sink.Send(context.Background(), event))

	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/timer-history/_doc/"+DocID(event), got.path)
	assert.Empty(t, got.user)

	var m map[string]any
	require.NoError(t, json.Unmarshal(got.body, &m))
	assert.Equal(t, "enforced", m["type"])
	assert.Equal(t, "run-9", m["run_id"])
	enf, ok := m["enforcement"].(map[string]any)
	require.True(t, ok, "payload %v", m)
	assert.EqualValues(t, 13, enf["sweeps"])
}

func TestDailyIndexAndAuth(t *testing.T) {
	var got captured
	srv := newIndexServer(t, http.StatusOK, &got)

	sink := New(srv.URL, "slumber", WithDailyIndex(), WithBasicAuth("admin", "secret"))
	e := history.Event{Type: history.EventStarted, OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), RunID: "r"}
	require.NoError(t, sink.Send(context.Background(), e))

	assert.True(t, strings.HasPrefix(got.path, "/slumber-2026.01.02/_doc/"), got.path)
	assert.Equal(t, "admin", got.user)
	assert.Equal(t, "secret", got.pass)
}

func TestDocIDStable(t *testing.T) {
	at := time.Unix(1700000000, 5).UTC()
	a := history.Event{Type: history.EventPaused, OccurredAt: at, RunID: "x"}
	b := a
	b.RemainingSeconds = 99
	assert.Equal(t, DocID(a), DocID(b), "payload must not affect identity")

	b.Type = history.EventResumed
	assert.NotEqual(t, DocID(a), DocID(b))
}

func TestSendErrorStatus(t *testing.T) {
	var got captured
	srv := newIndexServer(t, http.StatusServiceUnavailable, &got)

	sink := New(srv.URL, "idx")
	err := sink.Send(context.Background(), history.Event{Type: history.EventStarted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
