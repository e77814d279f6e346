package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

type slotRecord struct {
	info SlotInfo
	data []byte
}

// MemoryStore is an in-memory implementation of SlotStore.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*slotRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]*slotRecord)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.slots[key]
	if !ok {
		return nil, fmt.Errorf("slot %q: %w", key, ErrNotFound)
	}
	return slices.Clone(rec.data), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.slots[key]
	if !ok {
		rec = &slotRecord{info: SlotInfo{Key: key}}
		s.slots[key] = rec
	}
	rec.data = slices.Clone(data)
	rec.info.Size = len(data)
	rec.info.Version++
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[key]; !ok {
		return fmt.Errorf("slot %q: %w", key, ErrNotFound)
	}
	delete(s.slots, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]SlotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SlotInfo, 0, len(s.slots))
	for _, rec := range s.slots {
		result = append(result, rec.info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}
