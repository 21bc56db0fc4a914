package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// StudyStore provides an abstraction for study storage. Implementations
// must be safe for concurrent use.
type StudyStore interface {
	Add(study *Study) error
	Get(id string) (*Study, error)
	ListActive() ([]*Study, error)
	Update(study *Study) error
	Delete(id string) error
}

// InMemoryStudyStore is a map-backed StudyStore
type InMemoryStudyStore struct {
	studies map[string]*Study
	mu      sync.RWMutex
}

// NewInMemoryStudyStore creates an empty store
func NewInMemoryStudyStore() *InMemoryStudyStore {
	return &InMemoryStudyStore{
		studies: make(map[string]*Study),
	}
}

// Add stores a copy of study, stamping both timestamps
func (s *InMemoryStudyStore) Add(study *Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.studies[study.ID]; exists {
		return fmt.Errorf("%w: %s", ErrStudyExists, study.ID)
	}

	now := time.Now()
	study.CreatedAt = now
	study.UpdatedAt = now
	s.studies[study.ID] = study.Clone()
	return nil
}

// Get returns a copy of the stored study
func (s *InMemoryStudyStore) Get(id string) (*Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	study, exists := s.studies[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	return study.Clone(), nil
}

// ListActive returns active studies oldest first
func (s *InMemoryStudyStore) ListActive() ([]*Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Study
	for _, study := range s.studies {
		if study.Active {
			active = append(active, study.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

// Update replaces a stored study, keeping its creation time
func (s *InMemoryStudyStore) Update(study *Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.studies[study.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, study.ID)
	}

	study.CreatedAt = existing.CreatedAt
	study.UpdatedAt = time.Now()
	s.studies[study.ID] = study.Clone()
	return nil
}

// Delete removes a study
func (s *InMemoryStudyStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.studies[id]; !exists {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	delete(s.studies, id)
	return nil
}
