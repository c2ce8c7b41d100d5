package saga_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/application/saga"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/memory"
	"github.com/titinauta/journey-engine/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// failingGrants fails every insert after the first ok ones.
type failingGrants struct {
	*memory.Store
	ok int
}

func (f *failingGrants) InsertIfAbsent(ctx context.Context, g journey.Grant) (bool, error) {
	if f.ok == 0 {
		return false, errors.New("grant table locked")
	}
	f.ok--
	return f.Store.InsertIfAbsent(ctx, g)
}

var at = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newbornAnswers() []journey.Answer {
	return []journey.Answer{
		{ChildID: "c1", QuestionID: "q-newborn-voice", SelectedOptionID: "sim", CreatedAt: at},
		{ChildID: "c1", QuestionID: "q-newborn-light", SelectedOptionID: "sim", CreatedAt: at},
		{ChildID: "c1", QuestionID: "q-newborn-contrast", SelectedOptionID: "contrast", CreatedAt: at},
	}
}

func newSaga(t *testing.T, grants journey.GrantRepository, pub shared.EventPublisher, cfg saga.BadgeFlowConfig) *saga.BadgeFlowSaga {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return saga.NewBadgeFlowSaga(grants, journey.NewProgressCalculator(cat), journey.NewAchievementEngine(cat.Badges()), pub, logger.Nop(), cfg)
}

func badgeIDs(badges []catalog.Badge) []string {
	ids := make([]string, 0, len(badges))
	for _, b := range badges {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestBadgeFlow_FirstAnswer(t *testing.T) {
	store := memory.NewStore()
	rec := &recorder{}
	s := newSaga(t, store, rec, saga.DefaultBadgeFlowConfig())

	res, err := s.Execute(context.Background(), saga.BadgeFlowInput{
		ChildID:       "c1",
		History:       newbornAnswers()[:1],
		Timestamp:     at,
		CorrelationID: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, res.HasNewBadges())
	assert.Equal(t, []string{"first-step"}, badgeIDs(res.NewBadges))

	require.Len(t, rec.events, 1)
	ev, ok := rec.events[0].(shared.BadgeUnlockedEvent)
	require.True(t, ok)
	assert.Equal(t, "first-step", ev.BadgeID)
	assert.Equal(t, "req-1", ev.CorrelationID)

	grants, err := store.ListByChild(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].UnlockedAt.Equal(at))
}

func TestBadgeFlow_RerunGrantsNothing(t *testing.T) {
	store := memory.NewStore()
	rec := &recorder{}
	s := newSaga(t, store, rec, saga.DefaultBadgeFlowConfig())
	in := saga.BadgeFlowInput{ChildID: "c1", History: newbornAnswers(), Timestamp: at}

	first, err := s.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first-step", "newborn-explorer", "module-finisher"}, badgeIDs(first.NewBadges))

	second, err := s.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, second.HasNewBadges())
	assert.Len(t, rec.events, 3)
}

func TestBadgeFlow_CapDefersRemainingBadges(t *testing.T) {
	store := memory.NewStore()
	s := newSaga(t, store, nil, saga.BadgeFlowConfig{MaxGrantsPerRun: 1})
	in := saga.BadgeFlowInput{ChildID: "c1", History: newbornAnswers(), Timestamp: at}

	for i := 0; i < 3; i++ {
		res, err := s.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Len(t, res.NewBadges, 1, "run %d", i)
	}
	res, err := s.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.NewBadges)

	grants, err := store.ListByChild(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, grants, 3)
}

func TestBadgeFlow_InsertFailureKeepsPartialResult(t *testing.T) {
	grants := &failingGrants{Store: memory.NewStore(), ok: 1}
	rec := &recorder{}
	s := newSaga(t, grants, rec, saga.DefaultBadgeFlowConfig())

	res, err := s.Execute(context.Background(), saga.BadgeFlowInput{ChildID: "c1", History: newbornAnswers(), Timestamp: at})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert_grants")
	require.NotNil(t, res)
	assert.Len(t, res.NewBadges, 1)
	assert.Len(t, rec.events, 1)
}

func TestBadgeFlow_LoadFailure(t *testing.T) {
	store := memory.NewStore()
	store.FailWith = errors.New("down")
	s := newSaga(t, store, nil, saga.DefaultBadgeFlowConfig())

	res, err := s.Execute(context.Background(), saga.BadgeFlowInput{ChildID: "c1", History: newbornAnswers(), Timestamp: at})
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "load_grants")

	_, err = s.Execute(context.Background(), saga.BadgeFlowInput{})
	assert.Error(t, err)
}
