package journey

import (
	"math"
	"sort"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
)

// Status is the completion state of a module.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ModuleProgress is derived on every read and never stored as the source of truth.
type ModuleProgress struct {
	ModuleID      string        `json:"module_id"`
	Trail         catalog.Trail `json:"trail"`
	AnsweredCount int           `json:"answered_count"`
	TotalCount    int           `json:"total_count"`
	Percentage    float64       `json:"percentage"`
	Status        Status        `json:"status"`
}

// ComputeModuleProgress counts the module's questions present in answered.
func ComputeModuleProgress(m catalog.Module, answered AnsweredSet) ModuleProgress {
	p := ModuleProgress{
		ModuleID:   m.ID,
		Trail:      m.Trail,
		TotalCount: len(m.QuestionIDs),
	}
	for _, qid := range m.QuestionIDs {
		if answered.Has(qid) {
			p.AnsweredCount++
		}
	}
	p.Percentage = Percentage(p.AnsweredCount, p.TotalCount)

	switch {
	case p.TotalCount > 0 && p.AnsweredCount == p.TotalCount:
		p.Status = StatusCompleted
	case p.AnsweredCount > 0:
		p.Status = StatusInProgress
	default:
		p.Status = StatusNotStarted
	}
	return p
}

// Percentage returns answered/total*100 clamped to [0, 100]. A zero total
// yields 0. Rounding is left to presentation.
func Percentage(answered, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(answered) / float64(total) * 100
	return math.Max(0, math.Min(100, p))
}

// Overall summarizes progress across a set of modules.
type Overall struct {
	CompletedModules int `json:"completed_modules"`
	TotalModules     int `json:"total_modules"`
	// CurrentModuleID is empty when nothing is in progress and no unstarted
	// module fits the child's age.
	CurrentModuleID string `json:"current_module_id,omitempty"`
	NextModuleID    string `json:"next_module_id,omitempty"`
	// Modules holds per-module progress in journey order.
	Modules []ModuleProgress `json:"modules"`
}

// JourneyOrder sorts modules by (min age, order index); ties keep input order.
func JourneyOrder(modules []catalog.Module) []catalog.Module {
	out := make([]catalog.Module, len(modules))
	copy(out, modules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Window.Min != out[j].Window.Min {
			return out[i].Window.Min < out[j].Window.Min
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// AgeUnknown stands in for the age of a child without a birthdate.
const AgeUnknown = -1

// ComputeOverall derives completion counts and the current/next pointers.
//
// The current module is the first in-progress module in journey order; failing
// that, the first not-started module whose window contains ageMonths (any
// not-started module when the age is AgeUnknown). The next module is the first
// one after the current whose min age is strictly greater, i.e. the next age
// tier. Without a current module, next is the first module starting after
// ageMonths.
func ComputeOverall(modules []catalog.Module, answered AnsweredSet, ageMonths int) Overall {
	ordered := JourneyOrder(modules)

	o := Overall{
		TotalModules: len(ordered),
		Modules:      make([]ModuleProgress, 0, len(ordered)),
	}
	for _, m := range ordered {
		p := ComputeModuleProgress(m, answered)
		if p.Status == StatusCompleted {
			o.CompletedModules++
		}
		o.Modules = append(o.Modules, p)
	}

	current := -1
	for i, p := range o.Modules {
		if p.Status == StatusInProgress {
			current = i
			break
		}
	}
	if current < 0 {
		for i, p := range o.Modules {
			if p.Status == StatusNotStarted && (ageMonths == AgeUnknown || ordered[i].Window.Contains(ageMonths)) {
				current = i
				break
			}
		}
	}

	if current >= 0 {
		o.CurrentModuleID = ordered[current].ID
		for _, m := range ordered[current+1:] {
			if m.Window.Min > ordered[current].Window.Min {
				o.NextModuleID = m.ID
				break
			}
		}
		return o
	}
	if ageMonths == AgeUnknown {
		return o
	}

	for _, m := range ordered {
		if m.Window.Min > ageMonths {
			o.NextModuleID = m.ID
			break
		}
	}
	return o
}

// Find returns the progress entry for moduleID.
func (o Overall) Find(moduleID string) (ModuleProgress, bool) {
	for _, p := range o.Modules {
		if p.ModuleID == moduleID {
			return p, true
		}
	}
	return ModuleProgress{}, false
}
