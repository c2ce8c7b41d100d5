// Package catalog holds the immutable content registry of the journey: trails,
// modules (themes/weeks), questions and badges. The catalog is built once at
// process start, validated as a whole, and only read afterwards.
package catalog

import (
	"fmt"
	"strings"

	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRAIL
// ══════════════════════════════════════════════════════════════════════════════

// Trail is a top-level content category. The set is closed.
type Trail string

const (
	// TrailBaby - content about the child's development.
	TrailBaby Trail = "baby"
	// TrailMother - content about the caregiver's own wellbeing.
	TrailMother Trail = "mother"
)

// Trails returns every known trail in display order.
func Trails() []Trail {
	return []Trail{TrailBaby, TrailMother}
}

// Valid reports whether t is one of the known trails.
func (t Trail) Valid() bool {
	switch t {
	case TrailBaby, TrailMother:
		return true
	default:
		return false
	}
}

// ParseTrail resolves a loosely typed trail name. Unknown names are NotFound.
func ParseTrail(s string) (Trail, error) {
	t := Trail(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", shared.NotFound("catalog", "ParseTrail", "unknown trail %q", s)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGE WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// AgeWindow is an inclusive range of ages in whole months: [Min, Max].
type AgeWindow struct {
	Min int `json:"min_age_months"`
	Max int `json:"max_age_months"`
}

// Validate checks 0 <= Min <= Max.
func (w AgeWindow) Validate() error {
	if w.Min < 0 || w.Max < 0 {
		return fmt.Errorf("age window [%d,%d] has a negative bound", w.Min, w.Max)
	}
	if w.Min > w.Max {
		return fmt.Errorf("age window [%d,%d] has min > max", w.Min, w.Max)
	}
	return nil
}

// Overlaps reports whether the two windows share at least one month.
func (w AgeWindow) Overlaps(other AgeWindow) bool {
	return w.Min <= other.Max && w.Max >= other.Min
}

// Contains reports whether month lies inside the window.
func (w AgeWindow) Contains(month int) bool {
	return w.Min <= month && month <= w.Max
}

func (w AgeWindow) String() string {
	return fmt.Sprintf("[%d,%d]", w.Min, w.Max)
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE / QUESTION / BADGE
// ══════════════════════════════════════════════════════════════════════════════

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question belongs to exactly one module. Its window may be narrower than the module's.
type Question struct {
	ID         string
	ModuleID   string
	Prompt     string
	Window     AgeWindow
	OrderIndex int
	Options    []Option
	// FeedbackByOptionID holds the template shown after an option is picked.
	FeedbackByOptionID map[string]string
	// CorrectAnswer is an option id; empty when the question has no right answer.
	CorrectAnswer string
}

// HasOption reports whether optionID is one of the declared options.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// IsCorrect reports whether optionID is the correct answer. ok is false when the
// question has no correct answer.
func (q Question) IsCorrect(optionID string) (correct bool, ok bool) {
	if q.CorrectAnswer == "" {
		return false, false
	}
	return q.CorrectAnswer == optionID, true
}

// Module (theme/week) bundles questions for an age window.
type Module struct {
	ID          string
	Trail       Trail
	Title       string
	Description string
	Window      AgeWindow
	// WeekNumber is 0 when the module is not tied to a week.
	WeekNumber  int
	OrderIndex  int
	QuestionIDs []string
}

// HasWeek reports whether the module is bound to a week number.
func (m Module) HasWeek() bool {
	return m.WeekNumber > 0
}

// CriteriaKind names an unlock rule.
type CriteriaKind string

const (
	// CriteriaFirstAnswer - the child has at least one answer.
	CriteriaFirstAnswer CriteriaKind = "first_answer"
	// CriteriaModuleCompleted - a given module (or any module when ModuleID is empty) is completed.
	CriteriaModuleCompleted CriteriaKind = "module_completed"
	// CriteriaModulesCompleted - at least Count modules are completed.
	CriteriaModulesCompleted CriteriaKind = "modules_completed"
	// CriteriaQuestionsAnswered - at least Count questions are answered.
	CriteriaQuestionsAnswered CriteriaKind = "questions_answered"
	// CriteriaAnswerDays - answers were given on at least Count distinct days.
	CriteriaAnswerDays CriteriaKind = "answer_days"
	// CriteriaTrailCompleted - every module of Trail is completed.
	CriteriaTrailCompleted CriteriaKind = "trail_completed"
)

// UnlockCriteria is the predicate data of a badge.
type UnlockCriteria struct {
	Kind     CriteriaKind `json:"kind"`
	ModuleID string       `json:"module_id,omitempty"`
	Trail    Trail        `json:"trail,omitempty"`
	Count    int          `json:"count,omitempty"`
}

// Badge is a one-time reward.
type Badge struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Criteria    UnlockCriteria `json:"criteria"`
}
