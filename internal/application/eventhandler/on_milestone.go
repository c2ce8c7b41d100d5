package eventhandler

import (
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
)

// OnMilestoneHandler writes an audit log line for badge unlocks and module
// completions.
type OnMilestoneHandler struct {
	log *logger.Logger
}

// NewOnMilestoneHandler creates the handler.
func NewOnMilestoneHandler(log *logger.Logger) *OnMilestoneHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnMilestoneHandler{log: log.With(logger.Component("milestones"))}
}

// Handle implements shared.EventHandler.
func (h *OnMilestoneHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.BadgeUnlockedEvent:
		h.log.Info("badge unlocked",
			logger.ChildID(e.ChildID),
			logger.BadgeID(e.BadgeID),
			logger.String("title", e.Title),
			logger.String("correlation_id", e.CorrelationID),
		)
	case shared.ModuleCompletedEvent:
		h.log.Info("module completed",
			logger.ChildID(e.ChildID),
			logger.ModuleID(e.ModuleID),
			logger.String("correlation_id", e.CorrelationID),
		)
	}
	return nil
}
