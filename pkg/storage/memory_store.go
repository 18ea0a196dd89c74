package storage

import "sync"

// MemoryStore is a mutex-guarded map implementation of VisitedSet
type MemoryStore struct {
	mu      sync.Mutex
	visited map[string]struct{}
}

// NewMemoryStore creates an empty in-memory visited set
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{visited: make(map[string]struct{})}
}

// MarkVisited implements VisitedSet
func (s *MemoryStore) MarkVisited(canonical string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[canonical]; ok {
		return false, nil
	}
	s.visited[canonical] = struct{}{}
	return true, nil
}

// Count implements VisitedSet
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// Close implements VisitedSet
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = make(map[string]struct{})
	return nil
}
