// Package saga contains multi-step business processes that orchestrate several
// domain operations.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE FLOW SAGA
// Flow: Load Grants → Build Snapshot → Evaluate → Insert If Absent → Publish
// Runs after an answer was stored. Grants only grow; a grant that another
// writer inserted first is skipped silently.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeFlowInput is what the flow needs to evaluate a child's badges.
type BadgeFlowInput struct {
	ChildID string
	// History is the child's full answer history including the triggering answer.
	History []journey.Answer
	// Timestamp is used as UnlockedAt for new grants.
	Timestamp     time.Time
	CorrelationID string
}

// Validate checks if the input is valid.
func (i BadgeFlowInput) Validate() error {
	if i.ChildID == "" {
		return errors.New("badge_flow: child id is required")
	}
	return nil
}

// BadgeFlowResult lists what the flow unlocked.
type BadgeFlowResult struct {
	ChildID string
	// NewBadges are the badges whose grant this run inserted.
	NewBadges []catalog.Badge
	// Skipped are badges evaluated as unlocked whose grant was already present.
	Skipped     int
	Snapshot    journey.Snapshot
	ProcessedAt time.Time
}

// HasNewBadges returns true if any badge was unlocked.
func (r *BadgeFlowResult) HasNewBadges() bool {
	return len(r.NewBadges) > 0
}

// BadgeFlowStep names a step of the flow.
type BadgeFlowStep string

const (
	StepLoadGrants    BadgeFlowStep = "load_grants"
	StepEvaluate      BadgeFlowStep = "evaluate"
	StepInsertGrants  BadgeFlowStep = "insert_grants"
	StepPublishEvents BadgeFlowStep = "publish_events"
	StepComplete      BadgeFlowStep = "complete"
)

// BadgeFlowState tracks one run.
type BadgeFlowState struct {
	CurrentStep BadgeFlowStep
	Input       BadgeFlowInput
	Existing    map[string]journey.Grant
	Snapshot    journey.Snapshot
	Candidates  []catalog.Badge
	Inserted    []catalog.Badge
	Skipped     int
	Error       error
	FailedStep  BadgeFlowStep
}

// BadgeFlowSaga evaluates and persists badge grants.
type BadgeFlowSaga struct {
	grants     journey.GrantRepository
	calculator *journey.ProgressCalculator
	engine     *journey.AchievementEngine
	eventBus   shared.EventPublisher
	log        *logger.Logger

	maxGrantsPerRun int
}

// BadgeFlowConfig contains configuration for the saga.
type BadgeFlowConfig struct {
	// MaxGrantsPerRun caps inserts per run. Remaining badges are granted on the
	// next run since evaluation is repeatable.
	MaxGrantsPerRun int
}

// DefaultBadgeFlowConfig returns default configuration.
func DefaultBadgeFlowConfig() BadgeFlowConfig {
	return BadgeFlowConfig{MaxGrantsPerRun: 10}
}

// NewBadgeFlowSaga creates the saga.
func NewBadgeFlowSaga(
	grants journey.GrantRepository,
	calculator *journey.ProgressCalculator,
	engine *journey.AchievementEngine,
	eventBus shared.EventPublisher,
	log *logger.Logger,
	config BadgeFlowConfig,
) *BadgeFlowSaga {
	if config.MaxGrantsPerRun <= 0 {
		config = DefaultBadgeFlowConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BadgeFlowSaga{
		grants:          grants,
		calculator:      calculator,
		engine:          engine,
		eventBus:        eventBus,
		log:             log.With(logger.Component("badge_flow")),
		maxGrantsPerRun: config.MaxGrantsPerRun,
	}
}

// Execute runs the flow. A failure in the insert step returns the badges that
// were inserted before it alongside the error.
func (s *BadgeFlowSaga) Execute(ctx context.Context, input BadgeFlowInput) (*BadgeFlowResult, error) {
	state := &BadgeFlowState{CurrentStep: StepLoadGrants, Input: input}

	if err := input.Validate(); err != nil {
		return nil, err
	}

	// Step 1: existing grants
	if err := s.stepLoadGrants(ctx, state); err != nil {
		return nil, s.wrapError(state)
	}

	// Step 2: evaluate
	state.CurrentStep = StepEvaluate
	state.Snapshot = s.calculator.Snapshot(input.ChildID, input.History)
	state.Candidates = s.engine.Evaluate(state.Snapshot, state.Existing)

	// Step 3: insert
	state.CurrentStep = StepInsertGrants
	insertErr := s.stepInsertGrants(ctx, state)

	// Step 4: events for what was actually inserted
	state.CurrentStep = StepPublishEvents
	s.stepPublishEvents(state)

	result := &BadgeFlowResult{
		ChildID:     input.ChildID,
		NewBadges:   state.Inserted,
		Skipped:     state.Skipped,
		Snapshot:    state.Snapshot,
		ProcessedAt: input.Timestamp,
	}
	if insertErr != nil {
		return result, s.wrapError(state)
	}

	state.CurrentStep = StepComplete
	return result, nil
}

func (s *BadgeFlowSaga) stepLoadGrants(ctx context.Context, state *BadgeFlowState) error {
	grants, err := s.grants.ListByChild(ctx, state.Input.ChildID)
	if err != nil {
		state.FailedStep = StepLoadGrants
		state.Error = fmt.Errorf("failed to load grants: %w", err)
		return state.Error
	}
	state.Existing = journey.GrantSet(grants)
	return nil
}

func (s *BadgeFlowSaga) stepInsertGrants(ctx context.Context, state *BadgeFlowState) error {
	for i, b := range state.Candidates {
		if i >= s.maxGrantsPerRun {
			s.log.Warn("grant cap reached, deferring remaining badges",
				logger.ChildID(state.Input.ChildID),
				logger.Int("deferred", len(state.Candidates)-i),
			)
			break
		}

		inserted, err := s.grants.InsertIfAbsent(ctx, journey.Grant{
			ChildID:    state.Input.ChildID,
			BadgeID:    b.ID,
			UnlockedAt: state.Input.Timestamp,
		})
		if err != nil && !shared.IsConflict(err) {
			state.FailedStep = StepInsertGrants
			state.Error = fmt.Errorf("failed to insert grant %s: %w", b.ID, err)
			return state.Error
		}
		if !inserted {
			state.Skipped++
			continue
		}
		state.Inserted = append(state.Inserted, b)
	}
	return nil
}

func (s *BadgeFlowSaga) stepPublishEvents(state *BadgeFlowState) {
	if s.eventBus == nil {
		return
	}
	for _, b := range state.Inserted {
		event := shared.NewBadgeUnlockedEvent(state.Input.ChildID, b.ID, b.Title, state.Input.Timestamp)
		if state.Input.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(state.Input.CorrelationID)
		}
		if err := s.eventBus.Publish(event); err != nil {
			s.log.Warn("failed to publish badge event", logger.BadgeID(b.ID), logger.Err(err))
		}
	}
}

func (s *BadgeFlowSaga) wrapError(state *BadgeFlowState) error {
	return fmt.Errorf("badge_flow: step %s: %w", state.FailedStep, state.Error)
}
