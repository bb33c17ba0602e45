// Package cache is a small byte cache keyed by string, backed by Valkey when
// one is configured and by an in-process map otherwise.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valkey-io/valkey-go"
)

const prefix = "_SCENYX_"

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, content []byte, duration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Valkey struct {
	client valkey.Client
}

// NewValkey connects to a redis:// or valkey:// URL.
func NewValkey(url string) (*Valkey, error) {
	opts, err := valkey.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse valkey url")
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect to valkey")
	}
	return &Valkey{client: client}, nil
}

func (c *Valkey) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(prefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrMiss
	}
	return b, err
}

func (c *Valkey) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	cmd := c.client.B().Set().Key(prefix + key).Value(valkey.BinaryString(content))
	if duration > 0 {
		seconds := int64(duration / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		return c.client.Do(ctx, cmd.ExSeconds(seconds).Build()).Error()
	}
	return c.client.Do(ctx, cmd.Build()).Error()
}

func (c *Valkey) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = prefix + k
	}
	return c.client.Do(ctx, c.client.B().Del().Key(prefixed...).Build()).Error()
}

func (c *Valkey) Close() {
	c.client.Close()
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *Memory) Set(_ context.Context, key string, content []byte, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: append([]byte(nil), content...)}
	if duration > 0 {
		e.expires = c.now().Add(duration)
	}
	c.entries[key] = e
	return nil
}

func (c *Memory) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}
