// Package discovery advertises the HTTP API over mDNS so UIs on the LAN can
// find the daemon, and browses for it from the CLI.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	ServiceType = "_slumber._tcp"
	Domain      = "local."
	// TXTVersion is bumped when the advertised TXT keys change.
	TXTVersion = "1"
)

// Info is what the daemon advertises.
type Info struct {
	Instance string
	Port     int
	BasePath string
	TLS      bool
}

// TXT encodes Info into TXT records.
func (i Info) TXT() []string {
	return []string{
		"txtvers=" + TXTVersion,
		"path=" + i.BasePath,
		"tls=" + strconv.FormatBool(i.TLS),
	}
}

// DefaultInstance is "slumber on <hostname>".
func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "slumber"
	}
	return "slumber on " + strings.TrimSuffix(host, ".local")
}

// Advertiser keeps one registration alive until Stop.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// Advertise registers the service, replacing any previous registration.
func (a *Advertiser) Advertise(info Info) error {
	if info.Port <= 0 {
		return fmt.Errorf("invalid port %d", info.Port)
	}
	if info.Instance == "" {
		info.Instance = DefaultInstance()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	server, err := zeroconf.Register(info.Instance, ServiceType, Domain, info.Port, info.TXT(), nil)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Service is a daemon found on the network.
type Service struct {
	Instance string
	Host     string
	Port     int
	BasePath string
	TLS      bool
}

// URL is the API base URL of the service.
func (s Service) URL() string {
	scheme := "http"
	if s.TLS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + s.BasePath
}

var ErrNotFound = errors.New("no slumber daemon found")

// FindFirst browses until the first daemon answers or ctx ends.
func FindFirst(ctx context.Context) (Service, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- zeroconf.Browse(bctx, ServiceType, Domain, entries, removed) }()

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return Service{}, ErrNotFound
			}
			if s, ok := fromEntry(e); ok {
				return s, nil
			}
		case <-removed:
		case err := <-errCh:
			if err != nil {
				return Service{}, fmt.Errorf("browse %s: %w", ServiceType, err)
			}
			return Service{}, ErrNotFound
		case <-ctx.Done():
			return Service{}, ErrNotFound
		}
	}
}

// Find is FindFirst bounded by timeout.
func Find(timeout time.Duration) (Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return FindFirst(ctx)
}

func fromEntry(e *zeroconf.ServiceEntry) (Service, bool) {
	if e == nil || e.Port <= 0 {
		return Service{}, false
	}
	var host string
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	case e.HostName != "":
		host = strings.TrimSuffix(e.HostName, ".")
	default:
		return Service{}, false
	}
	s := Service{Instance: e.Instance, Host: host, Port: e.Port}
	s.BasePath, s.TLS = parseTXT(e.Text)
	return s, true
}

func parseTXT(txt []string) (path string, tls bool) {
	for _, kv := range txt {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "path":
			path = v
		case "tls":
			tls, _ = strconv.ParseBool(v)
		}
	}
	return path, tls
}
