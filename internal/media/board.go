package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// CategoryTransport marks a posted control as a media transport control.
const CategoryTransport = "transport"

const DefaultControlTTL = 2 * time.Minute

var (
	ErrControlInvalid  = errors.New("media: invalid control")
	ErrControlNotFound = errors.New("media: control not found")
)

// PostedControl is a notification-like control posted by a companion agent
// (a browser extension, a phone bridge, a player plugin). Each action is
// fired by POSTing to its URL.
type PostedControl struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	Title     string    `json:"title,omitempty"`
	Actions   []Action  `json:"actions"`
	PostedAt  time.Time `json:"posted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Board holds posted controls until they expire or are withdrawn.
type Board struct {
	clock  clockwork.Clock
	ttl    time.Duration
	client *http.Client

	mu    sync.Mutex
	items map[string]PostedControl
}

type BoardOption func(*Board)

func WithBoardClock(c clockwork.Clock) BoardOption { return func(b *Board) { b.clock = c } }

func WithBoardTTL(d time.Duration) BoardOption {
	return func(b *Board) {
		if d > 0 {
			b.ttl = d
		}
	}
}

func WithBoardHTTPClient(c *http.Client) BoardOption { return func(b *Board) { b.client = c } }

func NewBoard(opts ...BoardOption) *Board {
	b := &Board{
		clock:  clockwork.NewRealClock(),
		ttl:    DefaultControlTTL,
		client: &http.Client{Timeout: 2 * time.Second},
		items:  make(map[string]PostedControl),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Board) Name() string { return "board" }

// Post adds or refreshes a control. Reposting with the same ID replaces the
// entry and extends its lifetime.
func (b *Board) Post(pc PostedControl) (PostedControl, error) {
	pc.Source = strings.TrimSpace(pc.Source)
	if pc.Source == "" {
		return PostedControl{}, fmt.Errorf("%w: source required", ErrControlInvalid)
	}
	if pc.Category == "" {
		pc.Category = CategoryTransport
	}
	if len(pc.Actions) == 0 {
		return PostedControl{}, fmt.Errorf("%w: at least one action required", ErrControlInvalid)
	}
	actions := make([]Action, len(pc.Actions))
	for i, a := range pc.Actions {
		u, err := url.Parse(a.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return PostedControl{}, fmt.Errorf("%w: action %d needs an absolute http(s) url", ErrControlInvalid, i)
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		actions[i] = a
	}
	pc.Actions = actions
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	now := b.clock.Now()
	pc.PostedAt = now
	pc.ExpiresAt = now.Add(b.ttl)

	b.mu.Lock()
	b.items[pc.ID] = pc
	b.mu.Unlock()
	return pc, nil
}

func (b *Board) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[id]; !ok {
		return ErrControlNotFound
	}
	delete(b.items, id)
	return nil
}

// List returns live controls ordered by post time.
func (b *Board) List() []PostedControl {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	out := make([]PostedControl, 0, len(b.items))
	for _, pc := range b.items {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out
}

func (b *Board) pruneLocked() {
	now := b.clock.Now()
	for id, pc := range b.items {
		if !now.Before(pc.ExpiresAt) {
			delete(b.items, id)
		}
	}
}

// Targets returns the live controls whose category is transport.
func (b *Board) Targets(context.Context) ([]Target, error) {
	var out []Target
	for _, pc := range b.List() {
		if !strings.EqualFold(pc.Category, CategoryTransport) {
			continue
		}
		out = append(out, &boardControl{pc: pc, client: b.client})
	}
	return out, nil
}

type boardControl struct {
	pc     PostedControl
	client *http.Client
}

func (c *boardControl) ID() string        { return c.pc.ID }
func (c *boardControl) Source() string    { return c.pc.Source }
func (c *boardControl) Actions() []Action { return c.pc.Actions }

type triggerBody struct {
	ControlID string `json:"control_id"`
	ActionID  string `json:"action_id"`
	Label     string `json:"label"`
}

func (c *boardControl) Trigger(ctx context.Context, a Action) error {
	body, err := json.Marshal(triggerBody{ControlID: c.pc.ID, ActionID: a.ID, Label: a.Label})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("action %s rejected: %s", a.ID, resp.Status)
	}
	return nil
}
