package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	state   MountState
	expires time.Time
}

// MemoryStore is an in-memory Store with sliding expiry.
type MemoryStore struct {
	ttl    time.Duration
	now    func() time.Time
	mounts map[string]memoryEntry
	mu     sync.RWMutex
}

// NewMemoryStore creates a store whose mounts expire ttl after their last save.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		now:    time.Now,
		mounts: make(map[string]memoryEntry),
	}
}

// SetClock replaces the store's time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Save(_ context.Context, st MountState) error {
	if st.ID == "" {
		return fmt.Errorf("mount id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[st.ID] = memoryEntry{state: st.clone(), expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (MountState, error) {
	s.mu.RLock()
	e, ok := s.mounts[id]
	now := s.now()
	s.mu.RUnlock()

	if !ok || !now.Before(e.expires) {
		return MountState{}, fmt.Errorf("%w: %s", ErrMountNotFound, id)
	}
	return e.state.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mounts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMountNotFound, id)
	}
	delete(s.mounts, id)
	return nil
}

// Len returns the number of stored mounts, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mounts)
}

// Sweep removes expired mounts and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.mounts {
		if !now.Before(e.expires) {
			delete(s.mounts, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired mounts every interval until ctx is done. swept,
// when non-nil, receives the count removed by each sweep.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, swept func(n int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Sweep()
			if swept != nil {
				swept(n)
			}
		}
	}
}
