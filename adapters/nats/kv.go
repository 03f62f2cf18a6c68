package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/procural/quotes-go/ports/kv"
)

type KvConfig struct {
	Connect  Connector
	Bucket   string
	MaxBytes int64
}

// KvStore implements the key-value port on a JetStream KV bucket.
type KvStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNatsCon, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNatsCon()
		return nil, err
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1024 * 1024
	}

	kvBucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		MaxBytes: maxBytes,
	})
	if err != nil {
		closeNatsCon()
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}

	return &KvStore{kv: kvBucket, closeNc: closeNatsCon}, nil
}

func (k *KvStore) Close() error {
	k.closeNc()
	return nil
}

func (k *KvStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := k.kv.Put(ctx, key, data)
	return err
}

func (k *KvStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v.Value(), nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	err := k.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

var _ kv.Store = (*KvStore)(nil)
