package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// ListModulesQuery lists the journey's modules for a child.
type ListModulesQuery struct {
	UserID    string
	ChildID   string
	Caregiver string
	Trail     string
}

// ListModulesResult holds modules in journey order with progress.
type ListModulesResult struct {
	ChildID   string      `json:"child_id"`
	AgeMonths int         `json:"age_months"`
	Modules   []ModuleDTO `json:"modules"`
}

// ListModulesHandler handles ListModulesQuery.
type ListModulesHandler struct {
	catalog      *catalog.Catalog
	children     *access.Loader
	answers      journey.AnswerRepository
	calculator   *journey.ProgressCalculator
	personalizer *personalization.Engine
	retrier      *retry.Retrier
	log          *logger.Logger
}

// NewListModulesHandler creates the handler.
func NewListModulesHandler(
	cat *catalog.Catalog,
	children *access.Loader,
	answers journey.AnswerRepository,
	calculator *journey.ProgressCalculator,
	personalizer *personalization.Engine,
	retrier *retry.Retrier,
	log *logger.Logger,
) *ListModulesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ListModulesHandler{
		catalog:      cat,
		children:     children,
		answers:      answers,
		calculator:   calculator,
		personalizer: personalizer,
		retrier:      retrier,
		log:          log.With(logger.Component("list_modules")),
	}
}

// Handle executes the query.
func (h *ListModulesHandler) Handle(ctx context.Context, q ListModulesQuery) (*ListModulesResult, error) {
	trail, err := parseTrail(q.Trail)
	if err != nil {
		return nil, err
	}
	if err := h.children.Authorize(ctx, q.UserID, q.ChildID); err != nil {
		return nil, err
	}

	var (
		profile *child.Child
		history []journey.Answer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = h.children.Profile(gctx, h.retrier, q.ChildID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = retry.DoWithData(gctx, h.retrier, func(ctx context.Context) ([]journey.Answer, error) {
			return h.answers.History(ctx, q.ChildID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view, err := h.children.View(*profile)
	if err != nil {
		return nil, err
	}

	overall := h.calculator.Overall(history, view.AgeMonths, trail)
	pctx := personalization.NewContext(view.Child, q.Caregiver)

	result := &ListModulesResult{
		ChildID:   q.ChildID,
		AgeMonths: view.AgeMonths,
		Modules:   make([]ModuleDTO, 0, len(overall.Modules)),
	}
	for _, p := range overall.Modules {
		m, err := h.catalog.Module(p.ModuleID)
		if err != nil {
			return nil, err
		}
		dto := toModuleDTO(m, h.personalizer, pctx)
		progress := p
		dto.Progress = &progress
		dto.IsCurrent = m.ID == overall.CurrentModuleID
		dto.IsNext = m.ID == overall.NextModuleID
		result.Modules = append(result.Modules, dto)
	}
	return result, nil
}
