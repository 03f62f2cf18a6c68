// Package kv defines a minimal key-value port used for durable cursor and
// bookkeeping state. Adapters (e.g. NATS JetStream KV) implement Store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Put marshals v as JSON and stores it under key.
func Put[T any](ctx context.Context, store Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data)
}

// Get loads key and unmarshals it into T. Returns ErrNotFound when the key
// does not exist.
func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err = json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
