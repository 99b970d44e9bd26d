package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// KVBackend persists conversations in a NATS JetStream key-value bucket.
// JetStream replaces bucket values atomically, which is exactly the
// guarantee Backend.Put requires.
type KVBackend struct {
	kv jetstream.KeyValue
}

// NewKVBackend binds to the named bucket, creating it on first use.
func NewKVBackend(ctx context.Context, js jetstream.JetStream, bucket string) (*KVBackend, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open KV bucket %s: %w", bucket, err)
	}
	return &KVBackend{kv: kv}, nil
}

// Put replaces the value under key.
func (b *KVBackend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.kv.Put(ctx, key, data)
	return err
}

// Get reads the value under key. A missing key is not an error.
func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Delete purges the key and its history.
func (b *KVBackend) Delete(ctx context.Context, key string) error {
	err := b.kv.Purge(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Keys lists bucket keys with the given prefix.
func (b *KVBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}
