package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value; false means the cache dropped it
	Set(key string, data T) bool

	// Delete removes a key from the cache
	Delete(key string)

	Close()
}

// TTLCache is a bounded cache whose entries expire after a fixed TTL.
type TTLCache[T any] struct {
	c   *ristretto.Cache[string, T]
	ttl time.Duration
}

// NewTTLCache creates a cache holding roughly maxItems entries for ttl each.
func NewTTLCache[T any](maxItems int64, ttl time.Duration) (*TTLCache[T], error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, T]{
		NumCounters: maxItems * 10, // number of keys to track frequency of
		MaxCost:     maxItems,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &TTLCache[T]{c: c, ttl: ttl}, nil
}

func (t *TTLCache[T]) Get(key string) (T, bool) {
	return t.c.Get(key)
}

// Set stores data and waits until it is visible to Get.
func (t *TTLCache[T]) Set(key string, data T) bool {
	var ok bool
	if t.ttl > 0 {
		ok = t.c.SetWithTTL(key, data, 1, t.ttl)
	} else {
		ok = t.c.Set(key, data, 1)
	}
	t.c.Wait()
	return ok
}

func (t *TTLCache[T]) Delete(key string) {
	t.c.Del(key)
}

func (t *TTLCache[T]) Close() {
	t.c.Close()
}

var _ Cache[int] = (*TTLCache[int])(nil)
