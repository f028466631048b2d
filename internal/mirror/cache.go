package mirror

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LoadFunc constructs the live store for one account: fetch the snapshot,
// build the store, start its event loop.
type LoadFunc func(ctx context.Context, accountID int64) (*LiveStore, error)

// Cache hands out at most one live store per account id. Concurrent requests
// for an uncached id share a single in-flight construction; completed stores
// are returned synchronously ever after.
type Cache struct {
	load LoadFunc
	log  zerolog.Logger

	mu      sync.Mutex
	stores  map[int64]*LiveStore
	pending map[int64]*inflight
	closed  bool
}

// inflight is a pending store construction. Waiters block on done and then
// read store/err, which the owning goroutine sets before closing the channel.
type inflight struct {
	done  chan struct{}
	store *LiveStore
	err   error
}

// NewCache creates an empty cache around the given loader.
func NewCache(load LoadFunc, log zerolog.Logger) *Cache {
	return &Cache{
		load:    load,
		log:     log,
		stores:  make(map[int64]*LiveStore),
		pending: make(map[int64]*inflight),
	}
}

// Cached returns the completed store for an account without waiting. Callers
// that need immediate access check this first and fall back to GetOrLoad.
func (c *Cache) Cached(accountID int64) (*LiveStore, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	store, ok := c.stores[accountID]
	return store, ok
}

// GetOrLoad returns the store for an account, constructing it at most once
// regardless of call concurrency. Construction failure is surfaced to every
// waiter and leaves no cache entry, so a later call starts a fresh attempt.
func (c *Cache) GetOrLoad(ctx context.Context, accountID int64) (*LiveStore, error) {
	c.mu.Lock()
	if store, ok := c.stores[accountID]; ok {
		c.mu.Unlock()
		return store, nil
	}
	if call, ok := c.pending[accountID]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.store, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflight{done: make(chan struct{})}
	c.pending[accountID] = call
	c.mu.Unlock()

	c.log.Debug().Int64("account_id", accountID).Msg("constructing account store")
	store, err := c.load(ctx, accountID)

	c.mu.Lock()
	closed := c.closed
	if err == nil && !closed {
		c.stores[accountID] = store
	}
	delete(c.pending, accountID)
	c.mu.Unlock()

	if err == nil && closed {
		// Lost the race with Close; do not leak the poll loop.
		_ = store.Close()
		store, err = nil, context.Canceled
	}

	call.store, call.err = store, err
	close(call.done)
	return store, err
}

// Close tears down every cached store and empties the cache. Constructions
// still in flight are closed as soon as they complete.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	stores := make([]*LiveStore, 0, len(c.stores))
	for _, store := range c.stores {
		stores = append(stores, store)
	}
	c.stores = make(map[int64]*LiveStore)
	c.mu.Unlock()

	for _, store := range stores {
		_ = store.Close()
	}
}
