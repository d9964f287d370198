// Package client talks to a running slumber daemon over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultBaseURL matches the daemon's default listen address and base path.
const DefaultBaseURL = "http://127.0.0.1:8089/api"

// Client provides HTTP client functionality to communicate with the slumber daemon
type Client struct {
	baseURL string
	client  *http.Client
	// stream has no overall timeout; watch requests live as long as ctx
	stream *http.Client
	logger *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path, e.g. the daemon's tls_ca.crt
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a new slumber API client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, fmt.Errorf("tls setup: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
		stream:  &http.Client{Transport: transport},
	}, nil
}

// BaseURL returns the API base the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Health(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &h)
	return h, err
}

func (c *Client) State(ctx context.Context) (State, error) {
	var st State
	err := c.do(ctx, http.MethodGet, "/state", nil, &st)
	return st, err
}

// Start resumes a paused countdown or starts one of minutes. A nil minutes
// uses the daemon's current dial.
func (c *Client) Start(ctx context.Context, minutes *int64) (State, error) {
	var body any
	if minutes != nil {
		body = DurationRequest{DurationMinutes: *minutes}
	}
	var st State
	err := c.do(ctx, http.MethodPost, "/start", body, &st)
	return st, err
}

func (c *Client) Pause(ctx context.Context) (State, error) {
	var st State
	err := c.do(ctx, http.MethodPost, "/pause", nil, &st)
	return st, err
}

func (c *Client) Cancel(ctx context.Context) (State, error) {
	var st State
	err := c.do(ctx, http.MethodPost, "/cancel", nil, &st)
	return st, err
}

// SetDuration changes the dial while the timer is idle.
func (c *Client) SetDuration(ctx context.Context, minutes int64) (DurationResult, error) {
	var res DurationResult
	err := c.do(ctx, http.MethodPut, "/duration", DurationRequest{DurationMinutes: minutes}, &res)
	return res, err
}

func (c *Client) Controls(ctx context.Context) ([]PostedControl, error) {
	var out []PostedControl
	err := c.do(ctx, http.MethodGet, "/controls", nil, &out)
	return out, err
}

// PostControl posts or refreshes a transport control. Controls expire on the
// daemon unless re-posted.
func (c *Client) PostControl(ctx context.Context, pc PostedControl) (PostedControl, error) {
	var out PostedControl
	err := c.do(ctx, http.MethodPost, "/controls", pc, &out)
	return out, err
}

func (c *Client) RemoveControl(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/controls/"+url.PathEscape(id), nil, nil)
}

// Watch follows the state stream and calls fn for every state, starting with
// the current one. It returns nil when ctx ends or the daemon closes the
// stream, or the first error fn returns.
func (c *Client) Watch(ctx context.Context, fn func(State) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/state/stream", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if event == "state" && data != "" {
				var st State
				if err := json.Unmarshal([]byte(data), &st); err != nil {
					return fmt.Errorf("decode state event: %w", err)
				}
				if err := fn(st); err != nil {
					return err
				}
			}
			event, data = "", ""
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 explicit opt-in
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true // #nosec G402 explicit opt-in
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// do sends body as JSON when non-nil and decodes the reply into out when
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-200 reply from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
}
