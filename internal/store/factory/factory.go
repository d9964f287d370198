package factory

import (
	"errors"
	"net/url"
	"strings"

	"github.com/loykin/slumber/internal/store"
	fs "github.com/loykin/slumber/internal/store/file"
	kv "github.com/loykin/slumber/internal/store/natskv"
	pg "github.com/loykin/slumber/internal/store/postgres"
	sq "github.com/loykin/slumber/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:   "sqlite:///<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - file:     "file:///<path>" single CBOR file
//   - nats:     "nats://host:4222/<bucket>" JetStream key-value bucket
//   - memory:   "memory://" (nothing survives the process)
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	switch {
	case strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(strings.TrimPrefix(d, d[:len("sqlite://")]))
	case strings.HasPrefix(ld, "file://"):
		return fs.New(strings.TrimPrefix(d, d[:len("file://")]))
	case strings.HasPrefix(ld, "nats://") || strings.HasPrefix(ld, "tls://"):
		u, err := url.Parse(d)
		if err != nil {
			return nil, err
		}
		bucket := strings.Trim(u.Path, "/")
		u.Path = ""
		return kv.New(u.String(), bucket)
	case strings.HasPrefix(ld, "memory://"):
		return store.NewMemory(), nil
	}
	// default to sqlite path
	return sq.New(d)
}
