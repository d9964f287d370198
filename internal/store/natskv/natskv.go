// Package natskv keeps the timer record in a NATS JetStream key-value bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/loykin/slumber/internal/store"
)

const DefaultBucket = "slumber"

type DB struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	bucket string
}

// New connects to the NATS server at url. The bucket is opened or created by
// EnsureSchema.
func New(url, bucket string) (*DB, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	conn, err := nats.Connect(url, nats.Name("slumber"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &DB{conn: conn, js: js, bucket: bucket}, nil
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	kv, err := d.js.KeyValue(ctx, d.bucket)
	if err == nil {
		d.kv = kv
		return nil
	}
	kv, err = d.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      d.bucket,
		Description: "slumber timer state",
		History:     1,
	})
	if err != nil {
		return fmt.Errorf("failed to create KV bucket: %w", err)
	}
	d.kv = kv
	return nil
}

func (d *DB) bucketHandle(ctx context.Context) (jetstream.KeyValue, error) {
	if d.kv != nil {
		return d.kv, nil
	}
	if err := d.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return d.kv, nil
}

func (d *DB) Save(ctx context.Context, rec store.Record) error {
	kv, err := d.bucketHandle(ctx)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	data, err := store.EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = kv.Put(ctx, store.Namespace, data)
	return err
}

func (d *DB) Load(ctx context.Context) (store.Record, error) {
	kv, err := d.bucketHandle(ctx)
	if err != nil {
		return store.Record{}, err
	}
	entry, err := kv.Get(ctx, store.Namespace)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	return store.DecodeRecord(entry.Value())
}

func (d *DB) Clear(ctx context.Context) error {
	kv, err := d.bucketHandle(ctx)
	if err != nil {
		return err
	}
	err = kv.Delete(ctx, store.Namespace)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (d *DB) Close() error {
	if d.conn != nil {
		d.conn.Close()
	}
	return nil
}
