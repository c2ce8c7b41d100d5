package query_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/application/saga"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/internal/infrastructure/external/profile"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/memory"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

var now = time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)

// flakyAnswers fails the first `fail` History calls with err.
type flakyAnswers struct {
	*memory.Store
	fail  int32
	err   error
	calls atomic.Int32
}

func (f *flakyAnswers) History(ctx context.Context, childID string) ([]journey.Answer, error) {
	if f.calls.Add(1) <= f.fail {
		return nil, f.err
	}
	return f.Store.History(ctx, childID)
}

// racingAnswers simulates a save landing while a progress read is in flight:
// History snapshots the rows, then records an answer and invalidates the
// child, then returns the snapshot.
type racingAnswers struct {
	*memory.Store
	cache query.ProgressCache
	save  func()
	once  sync.Once
}

func (r *racingAnswers) History(ctx context.Context, childID string) ([]journey.Answer, error) {
	rows, err := r.Store.History(ctx, childID)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() {
		r.save()
		_ = r.cache.InvalidateChild(ctx, childID)
	})
	return rows, nil
}

type fixture struct {
	cat     *catalog.Catalog
	store   *memory.Store
	loader  *access.Loader
	calc    *journey.ProgressCalculator
	engine  *journey.AchievementEngine
	pers    *personalization.Engine
	retrier *retry.Retrier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	profiles := profile.NewStaticProvider(
		child.Child{ID: "c1", Birthdate: timeutil.Date(2026, time.January, 5), Gender: child.GenderFemale, DisplayName: "Ana"},
		child.Child{ID: "c2", DisplayName: "Sem Data"},
	)
	profiles.Grant("u1", "c1")
	profiles.Grant("u1", "c2")

	return &fixture{
		cat:     cat,
		store:   memory.NewStore(),
		loader:  access.NewLoader(profiles, profiles, child.NewWindowResolver(), func() time.Time { return now }, logger.Nop()),
		calc:    journey.NewProgressCalculator(cat),
		engine:  journey.NewAchievementEngine(cat.Badges()),
		pers:    personalization.NewEngine(),
		retrier: query.NewReadRetrier(logger.Nop()),
	}
}

func (f *fixture) answer(t *testing.T, questionID, optionID string, at time.Time) {
	t.Helper()
	q, err := f.cat.Question(questionID)
	require.NoError(t, err)
	a, err := journey.NewAnswer("c1", q, optionID, at)
	require.NoError(t, err)
	require.NoError(t, f.store.Upsert(context.Background(), a))
}

// ══════════════════════════════════════════════════════════════════════════════
// GET QUESTIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetQuestions(t *testing.T) {
	f := newFixture(t)
	f.answer(t, "q-smile-response", "sometimes", now)
	h := query.NewGetQuestionsHandler(f.cat, f.loader, f.store, f.pers, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.GetQuestionsQuery{UserID: "u1", ChildID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.AgeMonths)
	assert.Equal(t, catalog.AgeWindow{Min: 1, Max: 4}, res.Window)
	assert.Equal(t, 1, res.AnsweredCount)

	byID := make(map[string]query.QuestionDTO)
	for _, q := range res.Questions {
		byID[q.ID] = q
		assert.True(t, q.MinAgeMonths <= res.Window.Max && q.MaxAgeMonths >= res.Window.Min, q.ID)
		assert.NotContains(t, q.Prompt, "{childName}", q.ID)
	}
	assert.Equal(t, "sometimes", byID["q-smile-response"].AnsweredOptionID)
	assert.NotContains(t, byID, "q-sitting-support")
}

func TestGetQuestions_TrailFilter(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetQuestionsHandler(f.cat, f.loader, f.store, f.pers, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.GetQuestionsQuery{UserID: "u1", ChildID: "c1", Trail: "Baby"})
	require.NoError(t, err)
	for _, q := range res.Questions {
		assert.Equal(t, catalog.Trail("baby"), q.Trail)
	}

	_, err = h.Handle(context.Background(), query.GetQuestionsQuery{UserID: "u1", ChildID: "c1", Trail: "pets"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetQuestions_ChildErrors(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetQuestionsHandler(f.cat, f.loader, f.store, f.pers, f.retrier, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, query.GetQuestionsQuery{UserID: "u1", ChildID: "c2"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, query.GetQuestionsQuery{UserID: "u2", ChildID: "c1"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = h.Handle(ctx, query.GetQuestionsQuery{UserID: "u1", ChildID: ""})
	assert.True(t, shared.IsValidation(err))
}

func TestGetQuestions_RetriesExternalFailureOnce(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyAnswers{Store: f.store, fail: 1, err: shared.External("answer", "History", errors.New("conn reset"))}
	h := query.NewGetQuestionsHandler(f.cat, f.loader, flaky, f.pers, f.retrier, nil)

	_, err := h.Handle(context.Background(), query.GetQuestionsQuery{UserID: "u1", ChildID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), flaky.calls.Load())
}

func TestGetQuestions_DoesNotRetryOtherFailures(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyAnswers{Store: f.store, fail: 5, err: shared.Validation("answer", "History", "bad child id")}
	h := query.NewGetQuestionsHandler(f.cat, f.loader, flaky, f.pers, f.retrier, nil)

	_, err := h.Handle(context.Background(), query.GetQuestionsQuery{UserID: "u1", ChildID: "c1"})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, int32(1), flaky.calls.Load())
}

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetProgress_UsesAndRefreshesCache(t *testing.T) {
	f := newFixture(t)
	cache := memory.NewProgressCache()
	h := query.NewGetProgressHandler(f.cat, f.loader, f.store, f.calc, f.pers, cache, f.retrier, nil)
	ctx := context.Background()
	q := query.GetProgressQuery{UserID: "u1", ChildID: "c1"}

	first, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 0, first.CompletedModules)
	assert.Equal(t, len(f.cat.Modules()), first.TotalModules)

	second, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.FromCache)

	// Trail is part of the cache key.
	baby, err := h.Handle(ctx, query.GetProgressQuery{UserID: "u1", ChildID: "c1", Trail: "baby"})
	require.NoError(t, err)
	assert.False(t, baby.FromCache)
	assert.Less(t, baby.TotalModules, first.TotalModules)

	for _, id := range []string{"q-newborn-voice", "q-newborn-light", "q-newborn-contrast"} {
		f.answer(t, id, f.mustFirstOption(t, id), now)
	}
	require.NoError(t, cache.InvalidateChild(ctx, "c1"))

	third, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, 1, third.CompletedModules)
}

func TestGetProgress_SaveDuringReadIsNotCached(t *testing.T) {
	f := newFixture(t)
	cache := memory.NewProgressCache()
	racing := &racingAnswers{
		Store: f.store,
		cache: cache,
		save:  func() { f.answer(t, "q-newborn-voice", f.mustFirstOption(t, "q-newborn-voice"), now) },
	}
	h := query.NewGetProgressHandler(f.cat, f.loader, racing, f.calc, f.pers, cache, f.retrier, nil)
	ctx := context.Background()
	q := query.GetProgressQuery{UserID: "u1", ChildID: "c1"}

	first, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 0, answeredTotal(first))

	second, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, 1, answeredTotal(second))

	third, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, 1, answeredTotal(third))
}

func answeredTotal(res *query.GetProgressResult) int {
	n := 0
	for _, m := range res.Modules {
		n += m.AnsweredCount
	}
	return n
}

func TestGetProgress_CurrentAndNextModule(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetProgressHandler(f.cat, f.loader, f.store, f.calc, f.pers, nil, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.GetProgressQuery{UserID: "u1", ChildID: "c1", Trail: "baby"})
	require.NoError(t, err)
	require.NotNil(t, res.CurrentModule)
	assert.Equal(t, "baby-newborn-senses", res.CurrentModule.ID)
	assert.True(t, res.CurrentModule.IsCurrent)
	require.NotNil(t, res.NextModule)
	assert.Greater(t, res.NextModule.MinAgeMonths, res.CurrentModule.MinAgeMonths)
	assert.True(t, res.NextModule.IsNext)
	assert.False(t, res.FromCache)
}

func (f *fixture) mustFirstOption(t *testing.T, questionID string) string {
	t.Helper()
	q, err := f.cat.Question(questionID)
	require.NoError(t, err)
	return q.Options[0].ID
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY, BADGES, MODULES
// ══════════════════════════════════════════════════════════════════════════════

func TestGetAnswerHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.answer(t, "q-newborn-voice", "sim", now.Add(-48*time.Hour))
	f.answer(t, "q-smile-response", "nao", now)
	h := query.NewGetAnswerHistoryHandler(f.cat, f.loader, f.store, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.GetAnswerHistoryQuery{UserID: "u1", ChildID: "c1"})
	require.NoError(t, err)
	require.Len(t, res.Answers, 2)
	assert.Equal(t, "q-smile-response", res.Answers[0].QuestionID)
	assert.Equal(t, "baby-social-smile", res.Answers[0].ModuleID)
	assert.Equal(t, "q-newborn-voice", res.Answers[1].QuestionID)
}

func TestGetBadges(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.InsertIfAbsent(context.Background(), journey.Grant{ChildID: "c1", BadgeID: "first-step", UnlockedAt: now})
	require.NoError(t, err)
	h := query.NewGetBadgesHandler(f.loader, f.store, f.store, f.engine, nil, f.pers, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.GetBadgesQuery{UserID: "u1", ChildID: "c1", Caregiver: "vovó"})
	require.NoError(t, err)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "first-step", res.Unlocked[0].ID)
	require.NotNil(t, res.Unlocked[0].UnlockedAt)
	assert.True(t, res.Unlocked[0].UnlockedAt.Equal(now))
	assert.Contains(t, res.Unlocked[0].Description, "Ana")
	assert.Len(t, res.Locked, len(f.cat.Badges())-1)
	for _, b := range res.Locked {
		assert.Nil(t, b.UnlockedAt)
	}
}

func TestGetBadges_GrantsWhatConcurrentSavesMissed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three saves raced: each saw a partial module, so only first-step was granted.
	f.answer(t, "q-newborn-voice", "sim", now.Add(-2*time.Minute))
	f.answer(t, "q-newborn-light", f.mustFirstOption(t, "q-newborn-light"), now.Add(-time.Minute))
	f.answer(t, "q-newborn-contrast", f.mustFirstOption(t, "q-newborn-contrast"), now)
	_, err := f.store.InsertIfAbsent(ctx, journey.Grant{ChildID: "c1", BadgeID: "first-step", UnlockedAt: now.Add(-2 * time.Minute)})
	require.NoError(t, err)

	flow := saga.NewBadgeFlowSaga(f.store, f.calc, f.engine, nil, nil, saga.DefaultBadgeFlowConfig())
	h := query.NewGetBadgesHandler(f.loader, f.store, f.store, f.engine, flow, f.pers, f.retrier, nil)

	res, err := h.Handle(ctx, query.GetBadgesQuery{UserID: "u1", ChildID: "c1"})
	require.NoError(t, err)

	unlocked := make(map[string]query.BadgeDTO)
	for _, b := range res.Unlocked {
		unlocked[b.ID] = b
	}
	assert.Contains(t, unlocked, "first-step")
	require.Contains(t, unlocked, "newborn-explorer")
	assert.Contains(t, unlocked, "module-finisher")
	assert.True(t, unlocked["newborn-explorer"].UnlockedAt.Equal(now))
	assert.True(t, unlocked["first-step"].UnlockedAt.Equal(now.Add(-2*time.Minute)))

	// Reading again grants nothing new.
	again, err := h.Handle(ctx, query.GetBadgesQuery{UserID: "u1", ChildID: "c1"})
	require.NoError(t, err)
	assert.Len(t, again.Unlocked, len(res.Unlocked))
}

func TestListModules(t *testing.T) {
	f := newFixture(t)
	f.answer(t, "q-smile-response", "sim", now)
	h := query.NewListModulesHandler(f.cat, f.loader, f.store, f.calc, f.pers, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.ListModulesQuery{UserID: "u1", ChildID: "c1", Trail: "baby"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Modules)

	current := 0
	for _, m := range res.Modules {
		require.NotNil(t, m.Progress)
		assert.Equal(t, catalog.Trail("baby"), m.Trail)
		assert.NotContains(t, m.Description, "{")
		if m.IsCurrent {
			current++
		}
		if m.ID == "baby-social-smile" {
			assert.Equal(t, 1, m.Progress.AnsweredCount)
		}
	}
	assert.Equal(t, 1, current)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTRODUCTION & CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func TestGetIntroduction(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetIntroductionHandler(f.cat, f.loader, f.pers, f.retrier, nil)

	res, err := h.Handle(context.Background(), query.GetIntroductionQuery{UserID: "u1", ChildID: "c1", Caregiver: "vovó"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Greeting)
	assert.True(t, strings.HasPrefix(res.Text, res.Greeting), res.Text)
	assert.Contains(t, res.Text, "vovó")
	assert.Contains(t, res.Text, "Ana")

	// No birthdate is fine here.
	_, err = h.Handle(context.Background(), query.GetIntroductionQuery{UserID: "u1", ChildID: "c2"})
	require.NoError(t, err)
}

func TestBrowseCatalog(t *testing.T) {
	f := newFixture(t)
	h := query.NewBrowseCatalogHandler(f.cat)
	ctx := context.Background()
	week, month, zero := 1, 2, 0

	res, err := h.Handle(ctx, query.BrowseCatalogQuery{Week: &week})
	require.NoError(t, err)
	require.NotEmpty(t, res.Questions)
	for _, q := range res.Questions {
		assert.Equal(t, "baby-newborn-senses", q.ModuleID)
	}

	res, err = h.Handle(ctx, query.BrowseCatalogQuery{Month: &month})
	require.NoError(t, err)
	for _, q := range res.Questions {
		assert.True(t, q.MinAgeMonths <= month && q.MaxAgeMonths >= month, q.ID)
	}

	for name, q := range map[string]query.BrowseCatalogQuery{
		"neither": {},
		"both":    {Week: &week, Month: &month},
		"week 0":  {Week: &zero},
	} {
		_, err := h.Handle(ctx, q)
		assert.True(t, shared.IsValidation(err), name)
	}
}
