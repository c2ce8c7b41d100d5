package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Completed/total modules and the current/next pointers, recomputed from the
// child's answers. The result may be served from the projection cache, which
// SaveAnswer invalidates through the event bus.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery contains the parameters.
type GetProgressQuery struct {
	UserID    string
	ChildID   string
	Caregiver string
	Trail     string
}

// GetProgressResult is the overall progress.
type GetProgressResult struct {
	ChildID          string                   `json:"child_id"`
	AgeMonths        int                      `json:"age_months"`
	CompletedModules int                      `json:"completed_modules"`
	TotalModules     int                      `json:"total_modules"`
	CurrentModule    *ModuleDTO               `json:"current_module"`
	NextModule       *ModuleDTO               `json:"next_module"`
	Modules          []journey.ModuleProgress `json:"modules"`
	FromCache        bool                     `json:"-"`
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	catalog      *catalog.Catalog
	children     *access.Loader
	answers      journey.AnswerRepository
	calculator   *journey.ProgressCalculator
	personalizer *personalization.Engine
	cache        ProgressCache
	retrier      *retry.Retrier
	log          *logger.Logger

	group singleflight.Group
}

// NewGetProgressHandler creates the handler. cache may be nil.
func NewGetProgressHandler(
	cat *catalog.Catalog,
	children *access.Loader,
	answers journey.AnswerRepository,
	calculator *journey.ProgressCalculator,
	personalizer *personalization.Engine,
	cache ProgressCache,
	retrier *retry.Retrier,
	log *logger.Logger,
) *GetProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressHandler{
		catalog:      cat,
		children:     children,
		answers:      answers,
		calculator:   calculator,
		personalizer: personalizer,
		cache:        cache,
		retrier:      retrier,
		log:          log.With(logger.Component("get_progress")),
	}
}

// Handle executes the query.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*GetProgressResult, error) {
	trail, err := parseTrail(q.Trail)
	if err != nil {
		return nil, err
	}
	view, err := h.children.Load(ctx, h.retrier, q.UserID, q.ChildID)
	if err != nil {
		return nil, err
	}

	overall, fromCache, err := h.overall(ctx, q.ChildID, view.AgeMonths, trail)
	if err != nil {
		return nil, err
	}

	pctx := personalization.NewContext(view.Child, q.Caregiver)
	result := &GetProgressResult{
		ChildID:          q.ChildID,
		AgeMonths:        view.AgeMonths,
		CompletedModules: overall.CompletedModules,
		TotalModules:     overall.TotalModules,
		CurrentModule:    h.moduleDTO(overall, overall.CurrentModuleID, pctx),
		NextModule:       h.moduleDTO(overall, overall.NextModuleID, pctx),
		Modules:          overall.Modules,
		FromCache:        fromCache,
	}
	return result, nil
}

// variant keys a projection by everything Overall depends on besides answers.
func (h *GetProgressHandler) variant(ageMonths int, trail catalog.Trail) string {
	return fmt.Sprintf("%s:%d:%s", h.catalog.Digest(), ageMonths, trail)
}

func (h *GetProgressHandler) overall(ctx context.Context, childID string, ageMonths int, trail catalog.Trail) (*journey.Overall, bool, error) {
	variant := h.variant(ageMonths, trail)

	// The generation is read before the answers so a save landing in between
	// makes the fill below a no-op instead of caching pre-save counts.
	var gen uint64
	cacheable := h.cache != nil
	if cacheable {
		var err error
		if gen, err = h.cache.Generation(ctx, childID); err != nil {
			h.log.Warn("progress cache generation read failed", logger.ChildID(childID), logger.Err(err))
			cacheable = false
		}
	}
	if cacheable {
		cached, err := h.cache.GetOverall(ctx, childID, variant)
		if err != nil {
			h.log.Warn("progress cache read failed", logger.ChildID(childID), logger.Err(err))
		} else if cached != nil {
			return cached, true, nil
		}
	}

	key := fmt.Sprintf("%s|%s|%d", childID, variant, gen)
	v, err, _ := h.group.Do(key, func() (any, error) {
		history, err := retry.DoWithData(ctx, h.retrier, func(ctx context.Context) ([]journey.Answer, error) {
			return h.answers.History(ctx, childID)
		})
		if err != nil {
			return nil, err
		}

		o := h.calculator.Overall(history, ageMonths, trail)
		if cacheable {
			if err := h.cache.SetOverall(ctx, childID, variant, gen, &o); err != nil {
				h.log.Warn("progress cache write failed", logger.ChildID(childID), logger.Err(err))
			}
		}
		return &o, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*journey.Overall), false, nil
}

func (h *GetProgressHandler) moduleDTO(o *journey.Overall, moduleID string, pctx personalization.Context) *ModuleDTO {
	if moduleID == "" {
		return nil
	}
	m, err := h.catalog.Module(moduleID)
	if err != nil {
		return nil
	}
	dto := toModuleDTO(m, h.personalizer, pctx)
	if p, ok := o.Find(moduleID); ok {
		dto.Progress = &p
	}
	dto.IsCurrent = moduleID == o.CurrentModuleID
	dto.IsNext = moduleID == o.NextModuleID
	return &dto
}
