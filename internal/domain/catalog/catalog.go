package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// Catalog is the validated, read-only content registry. Values returned by its
// accessors are copies; slices inside them must be treated as read-only.
type Catalog struct {
	modules   []Module
	questions []Question
	badges    []Badge

	moduleIdx   map[string]int
	questionIdx map[string]int
	badgeIdx    map[string]int

	introduction string
	digest       string
}

// Definition is the unvalidated input of New. The YAML loader produces one,
// tests build them by hand.
type Definition struct {
	Introduction string
	Modules      []ModuleDefinition
	Badges       []Badge
}

// ModuleDefinition declares a module together with its questions.
type ModuleDefinition struct {
	ID          string
	Trail       Trail
	Title       string
	Description string
	Window      AgeWindow
	WeekNumber  int
	OrderIndex  int
	Questions   []QuestionDefinition
}

// QuestionDefinition declares a question. A nil Window inherits the module's.
type QuestionDefinition struct {
	ID                 string
	Prompt             string
	Window             *AgeWindow
	OrderIndex         int
	Options            []Option
	FeedbackByOptionID map[string]string
	CorrectAnswer      string
}

// ValidationErrors lists every problem found in a definition.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("catalog validation failed: %v", errors.Join(v...))
}

// Unwrap lets errors.Is see through to shared.ErrValidation.
func (v ValidationErrors) Unwrap() []error {
	return append([]error{shared.ErrValidation}, v...)
}

// New validates def as a whole and builds the catalog. All problems are
// reported together in a ValidationErrors.
func New(def Definition) (*Catalog, error) {
	var errs ValidationErrors
	addErr := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	c := &Catalog{
		moduleIdx:    make(map[string]int),
		questionIdx:  make(map[string]int),
		badgeIdx:     make(map[string]int),
		introduction: def.Introduction,
	}

	for _, md := range def.Modules {
		if md.ID == "" {
			addErr("module with empty id (title %q)", md.Title)
			continue
		}
		if _, dup := c.moduleIdx[md.ID]; dup {
			addErr("module %q: duplicate id", md.ID)
			continue
		}
		if !md.Trail.Valid() {
			addErr("module %q: unknown trail %q", md.ID, md.Trail)
		}
		if err := md.Window.Validate(); err != nil {
			addErr("module %q: %v", md.ID, err)
		}
		if md.WeekNumber < 0 {
			addErr("module %q: negative week number %d", md.ID, md.WeekNumber)
		}

		m := Module{
			ID:          md.ID,
			Trail:       md.Trail,
			Title:       md.Title,
			Description: md.Description,
			Window:      md.Window,
			WeekNumber:  md.WeekNumber,
			OrderIndex:  md.OrderIndex,
		}

		for _, qd := range md.Questions {
			q, qerrs := buildQuestion(md, qd)
			errs = append(errs, qerrs...)
			if q.ID == "" {
				continue
			}
			if _, dup := c.questionIdx[q.ID]; dup {
				addErr("question %q: duplicate id", q.ID)
				continue
			}
			c.questionIdx[q.ID] = len(c.questions)
			c.questions = append(c.questions, q)
			m.QuestionIDs = append(m.QuestionIDs, q.ID)
		}

		c.moduleIdx[m.ID] = len(c.modules)
		c.modules = append(c.modules, m)
	}

	for _, b := range def.Badges {
		if b.ID == "" {
			addErr("badge with empty id (title %q)", b.Title)
			continue
		}
		if _, dup := c.badgeIdx[b.ID]; dup {
			addErr("badge %q: duplicate id", b.ID)
			continue
		}
		if err := c.validateCriteria(b.Criteria); err != nil {
			addErr("badge %q: %v", b.ID, err)
		}
		c.badgeIdx[b.ID] = len(c.badges)
		c.badges = append(c.badges, b)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	digest, err := Digest(def)
	if err != nil {
		return nil, fmt.Errorf("digest catalog: %w", err)
	}
	c.digest = digest
	return c, nil
}

func buildQuestion(md ModuleDefinition, qd QuestionDefinition) (Question, []error) {
	var errs []error
	if qd.ID == "" {
		return Question{}, []error{fmt.Errorf("module %q: question with empty id", md.ID)}
	}

	window := md.Window
	if qd.Window != nil {
		window = *qd.Window
	}
	if err := window.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("question %q: %v", qd.ID, err))
	}
	if len(qd.Options) == 0 {
		errs = append(errs, fmt.Errorf("question %q: no options", qd.ID))
	}

	seen := make(map[string]bool, len(qd.Options))
	for _, o := range qd.Options {
		switch {
		case o.ID == "":
			errs = append(errs, fmt.Errorf("question %q: option with empty id", qd.ID))
		case seen[o.ID]:
			errs = append(errs, fmt.Errorf("question %q: duplicate option %q", qd.ID, o.ID))
		}
		seen[o.ID] = true
	}
	for optionID := range qd.FeedbackByOptionID {
		if !seen[optionID] {
			errs = append(errs, fmt.Errorf("question %q: feedback for unknown option %q", qd.ID, optionID))
		}
	}
	if qd.CorrectAnswer != "" && !seen[qd.CorrectAnswer] {
		errs = append(errs, fmt.Errorf("question %q: correct answer %q is not an option", qd.ID, qd.CorrectAnswer))
	}

	return Question{
		ID:                 qd.ID,
		ModuleID:           md.ID,
		Prompt:             qd.Prompt,
		Window:             window,
		OrderIndex:         qd.OrderIndex,
		Options:            slices.Clone(qd.Options),
		FeedbackByOptionID: qd.FeedbackByOptionID,
		CorrectAnswer:      qd.CorrectAnswer,
	}, errs
}

func (c *Catalog) validateCriteria(cr UnlockCriteria) error {
	switch cr.Kind {
	case CriteriaFirstAnswer:
		return nil
	case CriteriaModuleCompleted:
		if cr.ModuleID == "" {
			return nil
		}
		if _, ok := c.moduleIdx[cr.ModuleID]; !ok {
			return fmt.Errorf("criteria references unknown module %q", cr.ModuleID)
		}
		return nil
	case CriteriaModulesCompleted, CriteriaQuestionsAnswered, CriteriaAnswerDays:
		if cr.Count <= 0 {
			return fmt.Errorf("criteria %s needs a positive count, got %d", cr.Kind, cr.Count)
		}
		return nil
	case CriteriaTrailCompleted:
		if !cr.Trail.Valid() {
			return fmt.Errorf("criteria %s references unknown trail %q", cr.Kind, cr.Trail)
		}
		return nil
	default:
		return fmt.Errorf("unknown criteria kind %q", cr.Kind)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOKUPS
// ══════════════════════════════════════════════════════════════════════════════

// Module returns the module with the given id.
func (c *Catalog) Module(id string) (Module, error) {
	i, ok := c.moduleIdx[id]
	if !ok {
		return Module{}, shared.NotFound("catalog", "Module", "module %q not found", id)
	}
	return c.modules[i], nil
}

// Question returns the question with the given id.
func (c *Catalog) Question(id string) (Question, error) {
	i, ok := c.questionIdx[id]
	if !ok {
		return Question{}, shared.NotFound("catalog", "Question", "question %q not found", id)
	}
	return c.questions[i], nil
}

// Badge returns the badge with the given id.
func (c *Catalog) Badge(id string) (Badge, error) {
	i, ok := c.badgeIdx[id]
	if !ok {
		return Badge{}, shared.NotFound("catalog", "Badge", "badge %q not found", id)
	}
	return c.badges[i], nil
}

// Modules returns all modules in insertion order.
func (c *Catalog) Modules() []Module {
	return slices.Clone(c.modules)
}

// ModulesByTrail returns the modules of one trail in insertion order.
func (c *Catalog) ModulesByTrail(trail Trail) []Module {
	var out []Module
	for _, m := range c.modules {
		if m.Trail == trail {
			out = append(out, m)
		}
	}
	return out
}

// Questions returns all questions in insertion order.
func (c *Catalog) Questions() []Question {
	return slices.Clone(c.questions)
}

// QuestionsOf returns the questions of a module ordered by OrderIndex.
func (c *Catalog) QuestionsOf(moduleID string) ([]Question, error) {
	m, err := c.Module(moduleID)
	if err != nil {
		return nil, err
	}
	out := make([]Question, 0, len(m.QuestionIDs))
	for _, id := range m.QuestionIDs {
		out = append(out, c.questions[c.questionIdx[id]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

// Badges returns all badges in insertion order.
func (c *Catalog) Badges() []Badge {
	return slices.Clone(c.badges)
}

// Introduction returns the raw introduction template.
func (c *Catalog) Introduction() string {
	return c.introduction
}

// Digest identifies this catalog's content. Projection cache keys embed it.
func (c *Catalog) Digest() string {
	return c.digest
}

// Stats summarizes the catalog for logs and the lint tool.
type Stats struct {
	Modules   int
	Questions int
	Badges    int
}

// Stats returns catalog counts.
func (c *Catalog) Stats() Stats {
	return Stats{Modules: len(c.modules), Questions: len(c.questions), Badges: len(c.badges)}
}
