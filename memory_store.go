package main

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps sets and counters in process. It follows Redis
// semantics closely enough for the relay and its tests.
type memoryStore struct {
	mux      sync.Mutex
	now      func() time.Time
	sets     map[string]map[string]struct{}
	counters map[string]memoryCounter
}

type memoryCounter struct {
	value   int64
	expires time.Time // zero means no expiry
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		now:      now,
		sets:     make(map[string]map[string]struct{}),
		counters: make(map[string]memoryCounter),
	}
}

func (s *memoryStore) addMember(_ context.Context, key, member string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *memoryStore) removeMember(_ context.Context, key, member string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	delete(s.sets[key], member)
	if len(s.sets[key]) == 0 {
		delete(s.sets, key)
	}
	return nil
}

func (s *memoryStore) members(_ context.Context, key string) ([]string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

// live returns the counter for key, dropping it first if it has expired.
// Callers hold s.mux.
func (s *memoryStore) live(key string) (memoryCounter, bool) {
	c, ok := s.counters[key]
	if !ok {
		return c, false
	}
	if !c.expires.IsZero() && !s.now().Before(c.expires) {
		delete(s.counters, key)
		return memoryCounter{}, false
	}
	return c, true
}

func (s *memoryStore) counter(_ context.Context, key string) (int64, bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	c, ok := s.live(key)
	return c.value, ok, nil
}

func (s *memoryStore) setCounter(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	c := memoryCounter{value: value}
	if ttl > 0 {
		c.expires = s.now().Add(ttl)
	}
	s.counters[key] = c
	return nil
}

func (s *memoryStore) incrCounter(_ context.Context, key string) (int64, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	c, _ := s.live(key)
	c.value++
	s.counters[key] = c
	return c.value, nil
}

func (s *memoryStore) close() error {
	return nil
}
