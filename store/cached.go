package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CachedStore wraps a backing SlotStore with an in-memory cache.
// All reads and writes are served from the cache. Dirty slots are
// flushed to the backing store periodically in the background.
type CachedStore struct {
	cache   *MemoryStore
	backing SlotStore
	logger  *slog.Logger

	mu sync.Mutex
	// dirty and deleted map a key to the write generation that marked it,
	// so a flush only clears marks that no newer write has replaced.
	dirty   map[string]uint64
	deleted map[string]uint64
	gen     uint64

	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

// NewCachedStore creates a CachedStore that caches in memory and flushes
// dirty slots to the backing store every flushInterval.
func NewCachedStore(backing SlotStore, flushInterval time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		logger:        logger.With("component", "cached store"),
		dirty:         make(map[string]uint64),
		deleted:       make(map[string]uint64),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := cs.cache.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	cs.mu.Lock()
	_, gone := cs.deleted[key]
	cs.mu.Unlock()
	if gone {
		return nil, fmt.Errorf("slot %q: %w", key, ErrNotFound)
	}

	// Cache miss: load from backing store.
	data, err = cs.backing.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	cs.cache.mu.Lock()
	if _, exists := cs.cache.slots[key]; !exists {
		cs.cache.slots[key] = &slotRecord{
			info: SlotInfo{Key: key, Size: len(data), UpdatedAt: time.Now()},
			data: data,
		}
	}
	cs.cache.mu.Unlock()
	return cs.cache.Get(ctx, key)
}

func (cs *CachedStore) Put(ctx context.Context, key string, data []byte) error {
	if err := cs.cache.Put(ctx, key, data); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.gen++
	cs.dirty[key] = cs.gen
	delete(cs.deleted, key)
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Delete(ctx context.Context, key string) error {
	err := cs.cache.Delete(ctx, key)
	if errors.Is(err, ErrNotFound) {
		if _, berr := cs.backing.Get(ctx, key); berr != nil {
			return berr
		}
	} else if err != nil {
		return err
	}
	cs.mu.Lock()
	cs.gen++
	cs.deleted[key] = cs.gen
	delete(cs.dirty, key)
	cs.mu.Unlock()
	return nil
}

// List flushes pending writes, then lists the backing store.
func (cs *CachedStore) List(ctx context.Context) ([]SlotInfo, error) {
	if err := cs.Flush(ctx); err != nil {
		return nil, err
	}
	return cs.backing.List(ctx)
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.Flush(context.Background())
		case <-cs.stop:
			cs.Flush(context.Background())
			return
		}
	}
}

// Flush writes all dirty slots and pending deletions to the backing store.
// Failed slots stay dirty and are retried on the next flush.
func (cs *CachedStore) Flush(ctx context.Context) error {
	cs.mu.Lock()
	dirty := make(map[string]uint64, len(cs.dirty))
	for k, g := range cs.dirty {
		dirty[k] = g
	}
	deleted := make(map[string]uint64, len(cs.deleted))
	for k, g := range cs.deleted {
		deleted[k] = g
	}
	cs.mu.Unlock()

	var errs []error
	for key, gen := range dirty {
		data, err := cs.cache.Get(ctx, key)
		if err != nil {
			continue
		}
		if err := cs.backing.Put(ctx, key, data); err != nil {
			cs.logger.Warn("failed to flush slot", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("flush %q: %w", key, err))
			continue
		}
		cs.mu.Lock()
		if cs.dirty[key] == gen {
			delete(cs.dirty, key)
		}
		cs.mu.Unlock()
	}

	for key, gen := range deleted {
		err := cs.backing.Delete(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			cs.logger.Warn("failed to delete slot", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("delete %q: %w", key, err))
			continue
		}
		cs.mu.Lock()
		if cs.deleted[key] == gen {
			delete(cs.deleted, key)
		}
		cs.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Close signals the flush loop to perform a final flush and waits for it
// to complete.
func (cs *CachedStore) Close() {
	cs.closeOnce.Do(func() { close(cs.stop) })
	<-cs.done
}
