package history

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go/jetstream"
)

// KeyValue is the subset of jetstream.KeyValue used by KVBackend.
type KeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// KVBackend stores history in a NATS JetStream key-value bucket.
type KVBackend struct {
	kv KeyValue
}

func NewKVBackend(kv KeyValue) *KVBackend {
	return &KVBackend{kv: kv}
}

func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e.Value(), nil
}

func (b *KVBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}
