// Package query contains read operations (CQRS - Queries).
//
// Every query that touches the answer store or the profile service goes through
// a read-path retrier: one extra attempt with backoff on ExternalService errors.
package query

import (
	"context"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// NewReadRetrier returns the retrier shared by all query handlers.
func NewReadRetrier(log *logger.Logger) *retry.Retrier {
	if log == nil {
		log = logger.Nop()
	}
	return retry.ReadPathRetrier(shared.IsExternalService, func(attempt int, err error, delay time.Duration) {
		log.Warn("retrying read",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
}

// ProgressCache stores derived Overall projections. It is never the source of
// truth: a miss, an error or an eviction only costs a recomputation.
//
// Every child has a generation that InvalidateChild bumps. A reader takes the
// generation before reading answers and hands it back to SetOverall, which
// discards the projection if the child was invalidated in between.
type ProgressCache interface {
	// Generation returns the child's current projection generation.
	Generation(ctx context.Context, childID string) (uint64, error)
	// GetOverall returns nil without error on a miss.
	GetOverall(ctx context.Context, childID, variant string) (*journey.Overall, error)
	// SetOverall stores o only while the child is still at generation gen.
	SetOverall(ctx context.Context, childID, variant string, gen uint64, o *journey.Overall) error
	// InvalidateChild drops every projection of the child and bumps its
	// generation.
	InvalidateChild(ctx context.Context, childID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// QuestionDTO is a personalized question.
type QuestionDTO struct {
	ID           string           `json:"id"`
	ModuleID     string           `json:"module_id"`
	Trail        catalog.Trail    `json:"trail"`
	Prompt       string           `json:"prompt"`
	MinAgeMonths int              `json:"min_age_months"`
	MaxAgeMonths int              `json:"max_age_months"`
	Options      []catalog.Option `json:"options"`
	// AnsweredOptionID is the child's current selection, if any.
	AnsweredOptionID string `json:"answered_option_id,omitempty"`
}

// ModuleDTO is a personalized module, optionally with the child's progress.
type ModuleDTO struct {
	ID           string                  `json:"id"`
	Trail        catalog.Trail           `json:"trail"`
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	MinAgeMonths int                     `json:"min_age_months"`
	MaxAgeMonths int                     `json:"max_age_months"`
	WeekNumber   int                     `json:"week_number,omitempty"`
	Progress     *journey.ModuleProgress `json:"progress,omitempty"`
	IsCurrent    bool                    `json:"is_current,omitempty"`
	IsNext       bool                    `json:"is_next,omitempty"`
}

// BadgeDTO is a personalized badge.
type BadgeDTO struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

func toQuestionDTO(cat *catalog.Catalog, q catalog.Question) QuestionDTO {
	dto := QuestionDTO{
		ID:           q.ID,
		ModuleID:     q.ModuleID,
		Prompt:       q.Prompt,
		MinAgeMonths: q.Window.Min,
		MaxAgeMonths: q.Window.Max,
		Options:      q.Options,
	}
	if m, err := cat.Module(q.ModuleID); err == nil {
		dto.Trail = m.Trail
	}
	return dto
}

func toModuleDTO(m catalog.Module, p *personalization.Engine, ctx personalization.Context) ModuleDTO {
	return ModuleDTO{
		ID:           m.ID,
		Trail:        m.Trail,
		Title:        p.Personalize(m.Title, ctx),
		Description:  p.Personalize(m.Description, ctx),
		MinAgeMonths: m.Window.Min,
		MaxAgeMonths: m.Window.Max,
		WeekNumber:   m.WeekNumber,
	}
}

func toBadgeDTO(b catalog.Badge, p *personalization.Engine, ctx personalization.Context) BadgeDTO {
	return BadgeDTO{
		ID:          b.ID,
		Title:       p.Personalize(b.Title, ctx),
		Description: p.Personalize(b.Description, ctx),
		Icon:        b.Icon,
	}
}

// parseTrail accepts an empty filter.
func parseTrail(s string) (catalog.Trail, error) {
	if s == "" {
		return "", nil
	}
	return catalog.ParseTrail(s)
}
