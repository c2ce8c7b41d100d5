// Package memory implements journey.Store in process memory. It backs tests
// and the "memory" storage driver; data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/titinauta/journey-engine/internal/domain/journey"
)

type answerKey struct {
	childID    string
	questionID string
}

// Store is a mutex-guarded journey.Store.
type Store struct {
	mu      sync.RWMutex
	answers map[answerKey]journey.Answer
	grants  map[string]map[string]journey.Grant

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate an unavailable backend.
	FailWith error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		answers: make(map[answerKey]journey.Answer),
		grants:  make(map[string]map[string]journey.Grant),
	}
}

// Upsert inserts or overwrites the (child, question) row.
func (s *Store) Upsert(_ context.Context, a journey.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	s.answers[answerKey{a.ChildID, a.QuestionID}] = a
	return nil
}

// History returns the child's answers, newest first.
func (s *Store) History(_ context.Context, childID string) ([]journey.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var out []journey.Answer
	for k, a := range s.answers {
		if k.childID == childID {
			out = append(out, a)
		}
	}
	journey.SortNewestFirst(out)
	return out, nil
}

// InsertIfAbsent stores g unless the pair already has a grant.
func (s *Store) InsertIfAbsent(_ context.Context, g journey.Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return false, s.FailWith
	}
	byBadge, ok := s.grants[g.ChildID]
	if !ok {
		byBadge = make(map[string]journey.Grant)
		s.grants[g.ChildID] = byBadge
	}
	if _, exists := byBadge[g.BadgeID]; exists {
		return false, nil
	}
	byBadge[g.BadgeID] = g
	return true, nil
}

// ListByChild returns the child's grants in unlock order.
func (s *Store) ListByChild(_ context.Context, childID string) ([]journey.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]journey.Grant, 0, len(s.grants[childID]))
	for _, g := range s.grants[childID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	return out, nil
}

// Ping always succeeds unless FailWith is set.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailWith
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ journey.Store = (*Store)(nil)
