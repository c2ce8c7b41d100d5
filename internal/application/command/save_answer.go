// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/application/saga"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SAVE ANSWER COMMAND
// Stores a child's selection for a question, then recomputes progress and
// grants any badge the new state unlocks. Storage failures are returned as is:
// the write path never retries, so the caller knows the answer may not be saved.
// ══════════════════════════════════════════════════════════════════════════════

// SaveAnswerCommand contains the data to save an answer.
type SaveAnswerCommand struct {
	// UserID is the authenticated caller.
	UserID string

	ChildID    string
	QuestionID string
	OptionID   string

	// Caregiver labels the caregiver in feedback text (defaults to "mamãe").
	Caregiver string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SaveAnswerCommand) Validate() error {
	var missing []string
	if c.ChildID == "" {
		missing = append(missing, "child_id")
	}
	if c.QuestionID == "" {
		missing = append(missing, "question_id")
	}
	if c.OptionID == "" {
		missing = append(missing, "option_id")
	}
	if len(missing) > 0 {
		return shared.Validation("answer", "Save", "%s required", strings.Join(missing, ", "))
	}
	return nil
}

// BadgeDTO is a badge as shown to the caregiver.
type BadgeDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// SaveAnswerResult contains the outcome of SaveAnswer.
type SaveAnswerResult struct {
	Success bool `json:"success"`

	ChildID    string `json:"child_id"`
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`

	// Progress is the question's module after the save.
	Progress journey.ModuleProgress `json:"progress"`

	// Overall summarizes all modules; Modules is omitted.
	CompletedModules int    `json:"completed_modules"`
	TotalModules     int    `json:"total_modules"`
	CurrentModuleID  string `json:"current_module_id,omitempty"`
	NextModuleID     string `json:"next_module_id,omitempty"`

	// Correct is nil when the question has no right answer.
	Correct  *bool  `json:"correct,omitempty"`
	Feedback string `json:"feedback,omitempty"`

	ModuleCompleted bool       `json:"module_completed"`
	NewBadges       []BadgeDTO `json:"new_badges"`

	SavedAt time.Time `json:"saved_at"`

	// Events contains the domain events generated.
	Events []shared.Event `json:"-"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SaveAnswerHandler handles SaveAnswerCommand.
type SaveAnswerHandler struct {
	catalog        *catalog.Catalog
	children       *access.Loader
	answers        journey.AnswerRepository
	calculator     *journey.ProgressCalculator
	badgeFlow      *saga.BadgeFlowSaga
	personalizer   *personalization.Engine
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewSaveAnswerHandler creates a new SaveAnswerHandler.
func NewSaveAnswerHandler(
	cat *catalog.Catalog,
	children *access.Loader,
	answers journey.AnswerRepository,
	calculator *journey.ProgressCalculator,
	badgeFlow *saga.BadgeFlowSaga,
	personalizer *personalization.Engine,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *SaveAnswerHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SaveAnswerHandler{
		catalog:        cat,
		children:       children,
		answers:        answers,
		calculator:     calculator,
		badgeFlow:      badgeFlow,
		personalizer:   personalizer,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("save_answer")),
	}
}

// Handle executes the save answer command.
func (h *SaveAnswerHandler) Handle(ctx context.Context, cmd SaveAnswerCommand) (*SaveAnswerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	question, err := h.catalog.Question(cmd.QuestionID)
	if err != nil {
		return nil, err
	}

	// Single attempt for every call on the write path. Saving does not depend
	// on the child's age, so a missing birthdate is not an error here.
	view, err := h.children.LoadAgeOptional(ctx, nil, cmd.UserID, cmd.ChildID)
	if err != nil {
		return nil, err
	}

	answer, err := journey.NewAnswer(cmd.ChildID, question, cmd.OptionID, view.AsOf)
	if err != nil {
		return nil, err
	}

	prior, err := h.answers.History(ctx, cmd.ChildID)
	if err != nil {
		return nil, h.storageError("History", err)
	}
	if err := h.answers.Upsert(ctx, answer); err != nil {
		return nil, h.storageError("Upsert", err)
	}

	h.log.Info("answer saved",
		logger.ChildID(cmd.ChildID),
		logger.QuestionID(question.ID),
		logger.String("option_id", cmd.OptionID),
	)

	history := journey.Merge(prior, answer)

	before, err := h.calculator.Module(question.ModuleID, prior)
	if err != nil {
		return nil, err
	}
	after, err := h.calculator.Module(question.ModuleID, history)
	if err != nil {
		return nil, err
	}
	overall := h.calculator.Overall(history, view.AgeMonths, "")

	pctx := personalization.NewContext(view.Child, cmd.Caregiver)
	result := &SaveAnswerResult{
		Success:          true,
		ChildID:          cmd.ChildID,
		QuestionID:       question.ID,
		OptionID:         cmd.OptionID,
		Progress:         after,
		CompletedModules: overall.CompletedModules,
		TotalModules:     overall.TotalModules,
		CurrentModuleID:  overall.CurrentModuleID,
		NextModuleID:     overall.NextModuleID,
		Feedback:         h.personalizer.Personalize(question.FeedbackByOptionID[cmd.OptionID], pctx),
		ModuleCompleted:  before.Status != journey.StatusCompleted && after.Status == journey.StatusCompleted,
		NewBadges:        make([]BadgeDTO, 0),
		SavedAt:          answer.CreatedAt,
	}
	if correct, ok := question.IsCorrect(cmd.OptionID); ok {
		result.Correct = &correct
	}

	result.Events = append(result.Events, withCorrelation(
		shared.NewAnswerRecordedEvent(cmd.ChildID, question.ID, question.ModuleID, cmd.OptionID, answer.CreatedAt),
		cmd.CorrelationID,
	))
	if result.ModuleCompleted {
		result.Events = append(result.Events, withCorrelation(
			shared.NewModuleCompletedEvent(cmd.ChildID, question.ModuleID, answer.CreatedAt),
			cmd.CorrelationID,
		))
	}

	// The answer is stored at this point; a grant failure is logged and left to
	// the next save, which evaluates the same predicates again.
	flow, err := h.badgeFlow.Execute(ctx, saga.BadgeFlowInput{
		ChildID:       cmd.ChildID,
		History:       history,
		Timestamp:     answer.CreatedAt,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		h.log.Error("badge evaluation failed", logger.ChildID(cmd.ChildID), logger.Err(err))
	}
	if flow != nil {
		for _, b := range flow.NewBadges {
			result.NewBadges = append(result.NewBadges, BadgeDTO{
				ID:          b.ID,
				Title:       h.personalizer.Personalize(b.Title, pctx),
				Description: h.personalizer.Personalize(b.Description, pctx),
				Icon:        b.Icon,
			})
		}
	}

	for _, event := range result.Events {
		if err := h.eventPublisher.Publish(event); err != nil {
			h.log.Warn("failed to publish event",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}

	return result, nil
}

func (h *SaveAnswerHandler) storageError(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.External("answer", op, fmt.Errorf("answer store: %w", err))
}

func withCorrelation(e shared.Event, correlationID string) shared.Event {
	if correlationID == "" {
		return e
	}
	switch ev := e.(type) {
	case shared.AnswerRecordedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		return ev
	case shared.ModuleCompletedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		return ev
	default:
		return e
	}
}
