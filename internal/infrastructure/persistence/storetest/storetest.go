// Package storetest holds the behavioural checks every journey.Store
// implementation must pass.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/domain/journey"
)

// Run exercises a fresh store produced by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) journey.Store) {
	t.Run("UpsertIsLastWriteWins", func(t *testing.T) { upsertIsLastWriteWins(t, newStore(t)) })
	t.Run("HistoryIsPerChild", func(t *testing.T) { historyIsPerChild(t, newStore(t)) })
	t.Run("ConcurrentUpsertKeepsOneRow", func(t *testing.T) { concurrentUpsertKeepsOneRow(t, newStore(t)) })
	t.Run("InsertIfAbsent", func(t *testing.T) { insertIfAbsent(t, newStore(t)) })
	t.Run("ConcurrentGrantInsertsOnce", func(t *testing.T) { concurrentGrantInsertsOnce(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { assert.NoError(t, newStore(t).Ping(context.Background())) })
}

var base = time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

func upsertIsLastWriteWins(t *testing.T, s journey.Store) {
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, journey.Answer{ChildID: "c1", QuestionID: "q-1", SelectedOptionID: "sim", CreatedAt: base}))
	require.NoError(t, s.Upsert(ctx, journey.Answer{ChildID: "c1", QuestionID: "q-2", SelectedOptionID: "nao", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Upsert(ctx, journey.Answer{ChildID: "c1", QuestionID: "q-1", SelectedOptionID: "nao", CreatedAt: base.Add(2 * time.Hour)}))

	history, err := s.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "q-1", history[0].QuestionID)
	assert.Equal(t, "nao", history[0].SelectedOptionID)
	assert.True(t, history[0].CreatedAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, "q-2", history[1].QuestionID)
}

func historyIsPerChild(t *testing.T, s journey.Store) {
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, journey.Answer{ChildID: "c1", QuestionID: "q-1", SelectedOptionID: "sim", CreatedAt: base}))
	require.NoError(t, s.Upsert(ctx, journey.Answer{ChildID: "c2", QuestionID: "q-1", SelectedOptionID: "nao", CreatedAt: base}))

	history, err := s.History(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "nao", history[0].SelectedOptionID)

	empty, err := s.History(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func concurrentUpsertKeepsOneRow(t *testing.T, s journey.Store) {
	ctx := context.Background()
	options := []string{"sim", "nao", "as-vezes"}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := journey.Answer{
				ChildID:          "c1",
				QuestionID:       "q-1",
				SelectedOptionID: options[i%len(options)],
				CreatedAt:        base.Add(time.Duration(i) * time.Second),
			}
			assert.NoError(t, s.Upsert(ctx, a))
		}(i)
	}
	wg.Wait()

	history, err := s.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, options, history[0].SelectedOptionID)
}

func insertIfAbsent(t *testing.T, s journey.Store) {
	ctx := context.Background()

	inserted, err := s.InsertIfAbsent(ctx, journey.Grant{ChildID: "c1", BadgeID: "first-step", UnlockedAt: base})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertIfAbsent(ctx, journey.Grant{ChildID: "c1", BadgeID: "first-step", UnlockedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.InsertIfAbsent(ctx, journey.Grant{ChildID: "c1", BadgeID: "ten-answers", UnlockedAt: base.Add(-time.Hour)})
	require.NoError(t, err)
	assert.True(t, inserted)

	grants, err := s.ListByChild(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "ten-answers", grants[0].BadgeID)
	assert.Equal(t, "first-step", grants[1].BadgeID)
	assert.True(t, grants[1].UnlockedAt.Equal(base))
}

func concurrentGrantInsertsOnce(t *testing.T, s journey.Store) {
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		inserted int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertIfAbsent(ctx, journey.Grant{ChildID: "c1", BadgeID: "first-step", UnlockedAt: base})
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&inserted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&inserted))
	grants, err := s.ListByChild(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}
