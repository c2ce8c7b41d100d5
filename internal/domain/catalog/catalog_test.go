package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/domain/shared"
)

func win(min, max int) *AgeWindow {
	return &AgeWindow{Min: min, Max: max}
}

func yesNo() []Option {
	return []Option{{ID: "yes", Text: "Sim"}, {ID: "no", Text: "Não"}}
}

func testDefinition() Definition {
	return Definition{
		Introduction: "{greeting}, {motherName}!",
		Modules: []ModuleDefinition{
			{
				ID: "m-late", Trail: TrailBaby, Window: AgeWindow{Min: 10, Max: 16}, OrderIndex: 2, WeekNumber: 44,
				Questions: []QuestionDefinition{
					{ID: "q-eleven", Window: win(11, 11), OrderIndex: 1, Options: yesNo()},
					{ID: "q-later", Window: win(13, 15), OrderIndex: 2, Options: yesNo()},
				},
			},
			{
				ID: "m-early", Trail: TrailBaby, Window: AgeWindow{Min: 0, Max: 3}, OrderIndex: 1, WeekNumber: 1,
				Questions: []QuestionDefinition{
					{ID: "q-b", OrderIndex: 2, Options: yesNo()},
					{ID: "q-a", OrderIndex: 1, Options: yesNo(), CorrectAnswer: "yes"},
				},
			},
			{
				ID: "m-mother", Trail: TrailMother, Window: AgeWindow{Min: 0, Max: 12}, OrderIndex: 1,
				Questions: []QuestionDefinition{
					{ID: "q-m1", OrderIndex: 1, Options: yesNo(), FeedbackByOptionID: map[string]string{"yes": "ok"}},
				},
			},
		},
		Badges: []Badge{
			{ID: "first", Title: "Primeiro", Criteria: UnlockCriteria{Kind: CriteriaFirstAnswer}},
			{ID: "early-done", Criteria: UnlockCriteria{Kind: CriteriaModuleCompleted, ModuleID: "m-early"}},
		},
	}
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(testDefinition())
	require.NoError(t, err)
	return c
}

func ids(qs []Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func TestDefault_LoadsEmbeddedCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 8, stats.Modules)
	assert.Equal(t, 17, stats.Questions)
	assert.Equal(t, 7, stats.Badges)
	assert.Len(t, c.Digest(), 16)
	assert.Contains(t, c.Introduction(), "{greeting}")

	q, err := c.Question("q-newborn-contrast")
	require.NoError(t, err)
	assert.Equal(t, "contrast", q.CorrectAnswer)
	assert.Equal(t, AgeWindow{Min: 0, Max: 2}, q.Window)
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	a, err := Load("")
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("modules:\n  - id: x\n    colour: blue\n"))
	assert.Error(t, err)
}

func TestParse_QuestionWindowOverridesPartially(t *testing.T) {
	raw := []byte(`
modules:
  - id: m1
    trail: baby
    min_age_months: 2
    max_age_months: 6
    questions:
      - id: q1
        min_age_months: 4
        options:
          - { id: a, text: A }
`)
	c, err := Parse(raw)
	require.NoError(t, err)

	q, err := c.Question("q1")
	require.NoError(t, err)
	assert.Equal(t, AgeWindow{Min: 4, Max: 6}, q.Window)
	assert.Equal(t, "m1", q.ModuleID)
}

func TestNew_ReportsEveryProblem(t *testing.T) {
	def := Definition{
		Modules: []ModuleDefinition{
			{ID: "m1", Trail: "pets", Window: AgeWindow{Min: 5, Max: 2}, Questions: []QuestionDefinition{
				{ID: "q1", Options: []Option{{ID: "a"}, {ID: "a"}}, CorrectAnswer: "z"},
				{ID: "q2"},
			}},
			{ID: "m1", Trail: TrailBaby},
		},
		Badges: []Badge{
			{ID: "b1", Criteria: UnlockCriteria{Kind: CriteriaModuleCompleted, ModuleID: "nope"}},
			{ID: "b2", Criteria: UnlockCriteria{Kind: CriteriaAnswerDays}},
			{ID: "b3", Criteria: UnlockCriteria{Kind: "streak_forever"}},
		},
	}

	_, err := New(def)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	// trail, module window, q1 window (inherited), duplicate option, correct answer,
	// q2 window, q2 no options, duplicate module, three badges.
	assert.Len(t, verrs, 11)
	assert.Contains(t, err.Error(), `unknown trail "pets"`)
	assert.Contains(t, err.Error(), `duplicate option "a"`)
	assert.Contains(t, err.Error(), `unknown module "nope"`)
}

func TestNew_RejectsFeedbackForUnknownOption(t *testing.T) {
	def := Definition{Modules: []ModuleDefinition{{
		ID: "m1", Trail: TrailBaby, Window: AgeWindow{Min: 0, Max: 1},
		Questions: []QuestionDefinition{{ID: "q1", Options: yesNo(), FeedbackByOptionID: map[string]string{"maybe": "?"}}},
	}}}

	_, err := New(def)
	assert.ErrorContains(t, err, `feedback for unknown option "maybe"`)
}

func TestCatalog_Lookups(t *testing.T) {
	c := mustCatalog(t)

	_, err := c.Question("missing")
	assert.True(t, shared.IsNotFound(err))
	_, err = c.Module("missing")
	assert.True(t, shared.IsNotFound(err))
	_, err = c.Badge("missing")
	assert.True(t, shared.IsNotFound(err))

	m, err := c.Module("m-early")
	require.NoError(t, err)
	assert.Equal(t, []string{"q-b", "q-a"}, m.QuestionIDs)

	qs, err := c.QuestionsOf("m-early")
	require.NoError(t, err)
	assert.Equal(t, []string{"q-a", "q-b"}, ids(qs))

	assert.Len(t, c.ModulesByTrail(TrailMother), 1)
}

func TestCatalog_DigestChangesWithContent(t *testing.T) {
	a := mustCatalog(t)

	def := testDefinition()
	def.Modules[0].Title = "changed"
	b, err := New(def)
	require.NoError(t, err)

	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Equal(t, a.Digest(), mustCatalog(t).Digest())
}

func TestParseTrail(t *testing.T) {
	tr, err := ParseTrail(" Mother ")
	require.NoError(t, err)
	assert.Equal(t, TrailMother, tr)

	_, err = ParseTrail("dad")
	assert.True(t, shared.IsNotFound(err))
}

func TestAgeWindow(t *testing.T) {
	w := AgeWindow{Min: 9, Max: 12}
	assert.True(t, w.Overlaps(AgeWindow{Min: 11, Max: 11}))
	assert.True(t, w.Overlaps(AgeWindow{Min: 12, Max: 20}))
	assert.True(t, w.Overlaps(AgeWindow{Min: 0, Max: 9}))
	assert.False(t, w.Overlaps(AgeWindow{Min: 13, Max: 15}))
	assert.True(t, w.Contains(9))
	assert.False(t, w.Contains(13))
	assert.Error(t, AgeWindow{Min: 3, Max: 1}.Validate())
	assert.Error(t, AgeWindow{Min: -1, Max: 1}.Validate())
}
