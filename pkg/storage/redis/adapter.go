// Package redis stores each settings record as a JSON string under
// "<prefix>:<storage key>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis API the adapter needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Adapter implements settings.StorageAdapter on Redis.
type Adapter struct {
	client Client
	prefix string
	ttl    time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPrefix sets the key prefix (default "settings").
func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = prefix
	}
}

// WithTTL expires records after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(a *Adapter) {
		a.ttl = ttl
	}
}

// New returns an adapter using client.
func New(client Client, opts ...Option) *Adapter {
	a := &Adapter{client: client, prefix: "settings"}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *Adapter) keyFor(target settings.Target) (string, error) {
	key, err := storage.Key(target)
	if err != nil {
		return "", err
	}
	if a.prefix == "" {
		return key, nil
	}
	return a.prefix + ":" + key, nil
}

// Load implements settings.StorageAdapter.
func (a *Adapter) Load(ctx context.Context, target settings.Target) (*settings.NormalizedMap, error) {
	key, err := a.keyFor(target)
	if err != nil {
		return nil, err
	}
	raw, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return settings.NewNormalizedMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	out := settings.NewNormalizedMap()
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return out, nil
}

// Save implements settings.StorageAdapter.
func (a *Adapter) Save(ctx context.Context, target settings.Target, data *settings.NormalizedMap) error {
	key, err := a.keyFor(target)
	if err != nil {
		return err
	}
	if data == nil {
		data = settings.NewNormalizedMap()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := a.client.Set(ctx, key, raw, a.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}
