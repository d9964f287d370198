// Package opensearch indexes timer history into OpenSearch or Elasticsearch
// over the document REST API.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/slumber/internal/history"
)

// docNamespace seeds document IDs so a resent event overwrites itself.
var docNamespace = uuid.MustParse("5b0c8f55-3f0e-4a43-9a4e-2f1b7f7d6a10")

type Option func(*Sink)

// WithDailyIndex writes to "<index>-YYYY.MM.DD" by event time.
func WithDailyIndex() Option { return func(s *Sink) { s.daily = true } }

// WithBasicAuth sets credentials for every request.
func WithBasicAuth(user, pass string) Option {
	return func(s *Sink) { s.user, s.pass = user, pass }
}

func WithHTTPClient(c *http.Client) Option { return func(s *Sink) { s.client = c } }

// Sink PUTs each event as one document at baseURL/<index>/_doc/<id>.
type Sink struct {
	client     *http.Client
	baseURL    string
	index      string
	daily      bool
	user, pass string
}

func New(baseURL, index string, opts ...Option) *Sink {
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sink) indexFor(e history.Event) string {
	if !s.daily {
		return s.index
	}
	return s.index + "-" + e.OccurredAt.UTC().Format("2006.01.02")
}

// DocID is stable for a given run, event type and time.
func DocID(e history.Event) string {
	key := e.RunID + "/" + string(e.Type) + "/" + e.OccurredAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(docNamespace, []byte(key)).String()
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	u := s.baseURL + "/" + url.PathEscape(s.indexFor(e)) + "/_doc/" + DocID(e)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.pass)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch index %s: status %d: %s", s.indexFor(e), resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
