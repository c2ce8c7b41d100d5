package journey

import (
	"context"
	"sort"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER
// ══════════════════════════════════════════════════════════════════════════════

// Answer is the current selection of a child for one question. There is at most
// one Answer per (ChildID, QuestionID); a newer write replaces the older one.
type Answer struct {
	ChildID          string    `json:"child_id"`
	QuestionID       string    `json:"question_id"`
	SelectedOptionID string    `json:"selected_option_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewAnswer validates optionID against the question's declared options.
func NewAnswer(childID string, q catalog.Question, optionID string, at time.Time) (Answer, error) {
	if childID == "" {
		return Answer{}, shared.Validation("answer", "New", "child id is required")
	}
	if optionID == "" {
		return Answer{}, shared.Validation("answer", "New", "option id is required")
	}
	if !q.HasOption(optionID) {
		return Answer{}, shared.Validation("answer", "New", "option %q is not valid for question %q", optionID, q.ID)
	}
	return Answer{
		ChildID:          childID,
		QuestionID:       q.ID,
		SelectedOptionID: optionID,
		CreatedAt:        at,
	}, nil
}

// SortNewestFirst orders answers by CreatedAt descending. Equal timestamps fall
// back to question id so the order is deterministic.
func SortNewestFirst(answers []Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		if !answers[i].CreatedAt.Equal(answers[j].CreatedAt) {
			return answers[i].CreatedAt.After(answers[j].CreatedAt)
		}
		return answers[i].QuestionID < answers[j].QuestionID
	})
}

// Merge returns history with a replacing any existing row for the same question,
// newest first. history is not modified.
func Merge(history []Answer, a Answer) []Answer {
	out := make([]Answer, 0, len(history)+1)
	for _, h := range history {
		if h.QuestionID != a.QuestionID {
			out = append(out, h)
		}
	}
	out = append(out, a)
	SortNewestFirst(out)
	return out
}

// AnsweredSet is the set of answered question ids.
type AnsweredSet map[string]struct{}

// NewAnsweredSet collects the question ids of answers.
func NewAnsweredSet(answers []Answer) AnsweredSet {
	s := make(AnsweredSet, len(answers))
	for _, a := range answers {
		s[a.QuestionID] = struct{}{}
	}
	return s
}

// Has reports whether questionID was answered.
func (s AnsweredSet) Has(questionID string) bool {
	_, ok := s[questionID]
	return ok
}

// DistinctDays counts the Brasília calendar days on which answers were recorded.
func DistinctDays(answers []Answer) int {
	days := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		days[timeutil.DateKey(a.CreatedAt)] = struct{}{}
	}
	return len(days)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRANT
// ══════════════════════════════════════════════════════════════════════════════

// Grant records that a badge was unlocked for a child. Grants are never removed.
type Grant struct {
	ChildID    string    `json:"child_id"`
	BadgeID    string    `json:"badge_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// GrantSet indexes grants by badge id.
func GrantSet(grants []Grant) map[string]Grant {
	m := make(map[string]Grant, len(grants))
	for _, g := range grants {
		m[g.BadgeID] = g
	}
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// AnswerRepository persists answers keyed by (child, question).
type AnswerRepository interface {
	// Upsert inserts the answer or overwrites the selection and CreatedAt of the
	// existing row for the same (child, question). Concurrent writers race under
	// last-write-wins.
	Upsert(ctx context.Context, a Answer) error

	// History returns the child's answers ordered by CreatedAt descending.
	History(ctx context.Context, childID string) ([]Answer, error)
}

// GrantRepository persists badge grants with a uniqueness constraint on
// (child, badge).
type GrantRepository interface {
	// InsertIfAbsent stores g unless a grant for the same (child, badge) exists.
	// inserted is false when another writer got there first; that is not an error.
	InsertIfAbsent(ctx context.Context, g Grant) (inserted bool, err error)

	// ListByChild returns the child's grants ordered by UnlockedAt ascending.
	ListByChild(ctx context.Context, childID string) ([]Grant, error)
}

// Store bundles both repositories. Every persistence backend implements it.
type Store interface {
	AnswerRepository
	GrantRepository
	Ping(ctx context.Context) error
	Close() error
}
