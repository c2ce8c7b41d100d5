package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/application/saga"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// GetBadgesQuery asks for a child's unlocked and locked badges.
type GetBadgesQuery struct {
	UserID    string
	ChildID   string
	Caregiver string
}

// GetBadgesResult splits the catalog badges; both lists keep catalog order.
type GetBadgesResult struct {
	ChildID  string     `json:"child_id"`
	Unlocked []BadgeDTO `json:"unlocked"`
	Locked   []BadgeDTO `json:"locked"`
}

// GetBadgesHandler handles GetBadgesQuery.
//
// Concurrent saves each evaluate badges against the history they saw, so a
// badge earned only by their combined answers may have no grant yet. When a
// reconciler is set, the handler runs it over the full history before listing
// grants.
type GetBadgesHandler struct {
	children     *access.Loader
	answers      journey.AnswerRepository
	grants       journey.GrantRepository
	engine       *journey.AchievementEngine
	reconciler   *saga.BadgeFlowSaga
	personalizer *personalization.Engine
	retrier      *retry.Retrier
	log          *logger.Logger
}

// NewGetBadgesHandler creates the handler. reconciler may be nil, in which case
// answers is unused.
func NewGetBadgesHandler(
	children *access.Loader,
	answers journey.AnswerRepository,
	grants journey.GrantRepository,
	engine *journey.AchievementEngine,
	reconciler *saga.BadgeFlowSaga,
	personalizer *personalization.Engine,
	retrier *retry.Retrier,
	log *logger.Logger,
) *GetBadgesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetBadgesHandler{
		children:     children,
		answers:      answers,
		grants:       grants,
		engine:       engine,
		reconciler:   reconciler,
		personalizer: personalizer,
		retrier:      retrier,
		log:          log.With(logger.Component("get_badges")),
	}
}

// Handle executes the query.
func (h *GetBadgesHandler) Handle(ctx context.Context, q GetBadgesQuery) (*GetBadgesResult, error) {
	if err := h.children.Authorize(ctx, q.UserID, q.ChildID); err != nil {
		return nil, err
	}

	var profile *child.Child
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = h.children.Profile(gctx, h.retrier, q.ChildID)
		return err
	})
	if h.reconciler != nil {
		g.Go(func() error {
			return h.reconcile(gctx, q.ChildID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grants, err := retry.DoWithData(ctx, h.retrier, func(ctx context.Context) ([]journey.Grant, error) {
		return h.grants.ListByChild(ctx, q.ChildID)
	})
	if err != nil {
		return nil, err
	}

	existing := journey.GrantSet(grants)
	unlocked, locked := h.engine.Partition(existing)

	pctx := personalization.NewContext(*profile, q.Caregiver)
	result := &GetBadgesResult{
		ChildID:  q.ChildID,
		Unlocked: make([]BadgeDTO, 0, len(unlocked)),
		Locked:   make([]BadgeDTO, 0, len(locked)),
	}
	for _, b := range unlocked {
		dto := toBadgeDTO(b, h.personalizer, pctx)
		at := existing[b.ID].UnlockedAt
		dto.UnlockedAt = &at
		result.Unlocked = append(result.Unlocked, dto)
	}
	for _, b := range locked {
		result.Locked = append(result.Locked, toBadgeDTO(b, h.personalizer, pctx))
	}
	return result, nil
}

// reconcile grants badges the full history earns. Only the history read can
// fail the query; grant failures are logged and the listing shows what is
// stored.
func (h *GetBadgesHandler) reconcile(ctx context.Context, childID string) error {
	history, err := retry.DoWithData(ctx, h.retrier, func(ctx context.Context) ([]journey.Answer, error) {
		return h.answers.History(ctx, childID)
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	// A late grant is dated by the newest answer, when the badge was earned.
	earnedAt := history[0].CreatedAt
	for _, a := range history[1:] {
		if a.CreatedAt.After(earnedAt) {
			earnedAt = a.CreatedAt
		}
	}

	res, err := h.reconciler.Execute(ctx, saga.BadgeFlowInput{
		ChildID:   childID,
		History:   history,
		Timestamp: earnedAt,
	})
	if err != nil {
		h.log.Warn("badge reconciliation failed", logger.ChildID(childID), logger.Err(err))
		return nil
	}
	if res.HasNewBadges() {
		h.log.Info("badges granted on read", logger.ChildID(childID), logger.Int("count", len(res.NewBadges)))
	}
	return nil
}
