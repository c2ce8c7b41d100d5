package journey

import (
	"github.com/titinauta/journey-engine/internal/domain/catalog"
)

// ProgressCalculator derives progress from (catalog, answers).
type ProgressCalculator struct {
	catalog *catalog.Catalog
}

// NewProgressCalculator creates a calculator over cat.
func NewProgressCalculator(cat *catalog.Catalog) *ProgressCalculator {
	return &ProgressCalculator{catalog: cat}
}

// Overall computes progress across all modules, or one trail when trail is set.
func (pc *ProgressCalculator) Overall(answers []Answer, ageMonths int, trail catalog.Trail) Overall {
	modules := pc.catalog.Modules()
	if trail != "" {
		modules = pc.catalog.ModulesByTrail(trail)
	}
	return ComputeOverall(modules, NewAnsweredSet(answers), ageMonths)
}

// Module computes progress for a single module.
func (pc *ProgressCalculator) Module(moduleID string, answers []Answer) (ModuleProgress, error) {
	m, err := pc.catalog.Module(moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}
	return ComputeModuleProgress(m, NewAnsweredSet(answers)), nil
}

// Snapshot builds the input of AchievementEngine.Evaluate. Answers to questions
// that are no longer in the catalog are ignored.
func (pc *ProgressCalculator) Snapshot(childID string, answers []Answer) Snapshot {
	known := make([]Answer, 0, len(answers))
	for _, a := range answers {
		if _, err := pc.catalog.Question(a.QuestionID); err == nil {
			known = append(known, a)
		}
	}

	answered := NewAnsweredSet(known)
	modules := pc.catalog.Modules()
	progress := make([]ModuleProgress, 0, len(modules))
	for _, m := range modules {
		progress = append(progress, ComputeModuleProgress(m, answered))
	}

	return Snapshot{
		ChildID:            childID,
		AnsweredCount:      len(answered),
		DistinctAnswerDays: DistinctDays(known),
		Modules:            progress,
	}
}
