package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/procural/quotes-go/core/es"
	"github.com/procural/quotes-go/ports/kv"
)

type CursorStoreConfig struct {
	Connect Connector
	Bucket  string
}

// CursorStore persists process-manager consumption positions in a JetStream
// KV bucket, one key per subscriber.
type CursorStore struct {
	kv *KvStore
}

func NewCursorStore(ctx context.Context, cfg CursorStoreConfig) (*CursorStore, error) {
	kvStore, err := NewKvStore(ctx, KvConfig{
		Connect: cfg.Connect,
		Bucket:  cfg.Bucket,
	})
	if err != nil {
		return nil, err
	}
	return &CursorStore{kv: kvStore}, nil
}

// NewCursorStoreFrom reuses an existing KvStore.
func NewCursorStoreFrom(kvStore *KvStore) *CursorStore {
	return &CursorStore{kv: kvStore}
}

func (c *CursorStore) Close() error { return c.kv.Close() }

func (c *CursorStore) key(subscriber string) string {
	// KV keys must not contain spaces or dots
	r := strings.NewReplacer(" ", "_", ".", "-")
	return "cursor-" + r.Replace(subscriber)
}

func (c *CursorStore) Get(ctx context.Context, subscriber string) (uint64, error) {
	pos, err := kv.Get[uint64](ctx, c.kv, c.key(subscriber))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, es.ErrCursorNotFound
		}
		return 0, fmt.Errorf("failed to get cursor for %s: %w", subscriber, err)
	}
	return pos, nil
}

func (c *CursorStore) Set(ctx context.Context, subscriber string, position uint64) error {
	return kv.Put(ctx, c.kv, c.key(subscriber), position)
}

var _ es.CursorStore = (*CursorStore)(nil)
