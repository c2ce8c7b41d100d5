package journey

import (
	"github.com/titinauta/journey-engine/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is everything badge predicates may look at.
type Snapshot struct {
	ChildID            string
	AnsweredCount      int
	DistinctAnswerDays int
	// Modules covers every catalog module, all trails.
	Modules []ModuleProgress
}

// CompletedModules counts completed modules.
func (s Snapshot) CompletedModules() int {
	n := 0
	for _, m := range s.Modules {
		if m.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// ModuleCompleted reports whether moduleID is completed.
func (s Snapshot) ModuleCompleted(moduleID string) bool {
	for _, m := range s.Modules {
		if m.ModuleID == moduleID {
			return m.Status == StatusCompleted
		}
	}
	return false
}

// TrailCompleted reports whether every module of trail is completed. A trail
// without modules is never completed.
func (s Snapshot) TrailCompleted(trail catalog.Trail) bool {
	seen := false
	for _, m := range s.Modules {
		if m.Trail != trail {
			continue
		}
		seen = true
		if m.Status != StatusCompleted {
			return false
		}
	}
	return seen
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// AchievementEngine evaluates badge predicates. It holds no per-child state;
// persisting the returned grants exactly once is the caller's job.
type AchievementEngine struct {
	badges []catalog.Badge
}

// NewAchievementEngine creates an engine over the catalog's badges.
func NewAchievementEngine(badges []catalog.Badge) *AchievementEngine {
	return &AchievementEngine{badges: badges}
}

// Evaluate returns the badges whose predicate holds for s and that are not in
// existing. With an unchanged snapshot and the grants from a previous call
// included in existing, the result is empty.
func (e *AchievementEngine) Evaluate(s Snapshot, existing map[string]Grant) []catalog.Badge {
	var unlocked []catalog.Badge
	for _, b := range e.badges {
		if _, has := existing[b.ID]; has {
			continue
		}
		if Satisfied(b.Criteria, s) {
			unlocked = append(unlocked, b)
		}
	}
	return unlocked
}

// Partition splits the catalog's badges into unlocked and locked, keeping
// catalog order in both.
func (e *AchievementEngine) Partition(existing map[string]Grant) (unlocked, locked []catalog.Badge) {
	for _, b := range e.badges {
		if _, has := existing[b.ID]; has {
			unlocked = append(unlocked, b)
		} else {
			locked = append(locked, b)
		}
	}
	return unlocked, locked
}

// Satisfied evaluates one unlock predicate.
func Satisfied(c catalog.UnlockCriteria, s Snapshot) bool {
	switch c.Kind {
	case catalog.CriteriaFirstAnswer:
		return s.AnsweredCount > 0
	case catalog.CriteriaModuleCompleted:
		if c.ModuleID == "" {
			return s.CompletedModules() > 0
		}
		return s.ModuleCompleted(c.ModuleID)
	case catalog.CriteriaModulesCompleted:
		return s.CompletedModules() >= c.Count
	case catalog.CriteriaQuestionsAnswered:
		return s.AnsweredCount >= c.Count
	case catalog.CriteriaAnswerDays:
		return s.DistinctAnswerDays >= c.Count
	case catalog.CriteriaTrailCompleted:
		return s.TrailCompleted(c.Trail)
	default:
		return false
	}
}
