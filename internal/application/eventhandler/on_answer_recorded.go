// Package eventhandler contains domain event subscribers.
package eventhandler

import (
	"context"
	"time"

	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ANSWER RECORDED HANDLER
// Drops the child's cached progress projections so the next read recomputes
// them from the answer store. The bus does not redeliver, so transient cache
// failures are retried here; a projection that survives every attempt lives
// at most for the cache TTL.
// ═══════════════════════════════════════════════════════════════════════════

// OnAnswerRecordedHandler invalidates progress projections.
type OnAnswerRecordedHandler struct {
	cache   query.ProgressCache
	retrier *retry.Retrier
	timeout time.Duration
	log     *logger.Logger
}

// NewOnAnswerRecordedHandler creates the handler.
func NewOnAnswerRecordedHandler(cache query.ProgressCache, log *logger.Logger) *OnAnswerRecordedHandler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("on_answer_recorded"))
	retrier := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(25*time.Millisecond),
		retry.WithMaxDelay(250*time.Millisecond),
		retry.WithMultiplier(3),
		retry.WithRetryIf(func(error) bool { return true }),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying progress invalidation",
				logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
		}),
	)
	return &OnAnswerRecordedHandler{
		cache:   cache,
		retrier: retrier,
		timeout: 2 * time.Second,
		log:     log,
	}
}

// Handle implements shared.EventHandler.
func (h *OnAnswerRecordedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.AnswerRecordedEvent)
	if !ok {
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.cache.InvalidateChild(ctx, e.ChildID)
	})
	if err != nil {
		h.log.Error("progress invalidation failed", logger.ChildID(e.ChildID), logger.Err(err))
		return err
	}
	h.log.Debug("progress invalidated", logger.ChildID(e.ChildID), logger.QuestionID(e.QuestionID))
	return nil
}
