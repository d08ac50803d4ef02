package unsettled

import (
	"context"
	"sort"
	"sync"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

// MemoryStore keeps entries in process. It is used by tests and when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.OrderKey]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.OrderKey]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key domain.OrderKey) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *MemoryStore) Insert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Key]; ok {
		return domain.Wrapf(domain.ErrUnsettledFeeExists, "%s", entry.Key)
	}
	s.entries[entry.Key] = entry
	return nil
}

func (s *MemoryStore) Update(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Key]; !ok {
		return domain.Wrapf(domain.ErrOrderNotFound, "no unsettled fee for %s", entry.Key)
	}
	s.entries[entry.Key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key domain.OrderKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) ListByBalanceManager(_ context.Context, balanceManagerID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for key, entry := range s.entries {
		if key.BalanceManagerID == balanceManagerID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

func (s *MemoryStore) Keys(_ context.Context, limit int) ([]domain.OrderKey, error) {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Key.String() < entries[j].Key.String()
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	keys := make([]domain.OrderKey, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return keys, nil
}
