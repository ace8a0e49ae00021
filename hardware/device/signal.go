package device

import (
	"sort"
	"sync"
)

// Signal is a typed callback hub. Emit calls subscribers in subscription order,
// outside of internal lock, so subscribers may cancel themselves.
type Signal[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(T)
}

// Subscription detaches one callback from its Signal. Zero value is valid and does nothing.
type Subscription struct {
	once   *sync.Once
	cancel func()
}

func (s Subscription) Cancel() {
	if s.once != nil {
		s.once.Do(s.cancel)
	}
}

func (s Subscription) Active() bool { return s.once != nil }

func (s *Signal[T]) Subscribe(f func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[uint64]func(T))
	}
	s.next++
	id := s.next
	s.subs[id] = f
	return Subscription{
		once: &sync.Once{},
		cancel: func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		},
	}
}

func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fs := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fs = append(fs, s.subs[id])
	}
	s.mu.Unlock()

	for _, f := range fs {
		f(v)
	}
}

func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
