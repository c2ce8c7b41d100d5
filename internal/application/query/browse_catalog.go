package query

import (
	"context"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// BrowseCatalogQuery selects questions by week number or by age month. Exactly
// one of Week and Month must be set. Templates are returned unrendered.
type BrowseCatalogQuery struct {
	Week  *int
	Month *int
}

// Validate validates the query.
func (q BrowseCatalogQuery) Validate() error {
	switch {
	case q.Week == nil && q.Month == nil:
		return shared.Validation("catalog", "Browse", "week or month is required")
	case q.Week != nil && q.Month != nil:
		return shared.Validation("catalog", "Browse", "week and month are mutually exclusive")
	case q.Week != nil && *q.Week <= 0:
		return shared.Validation("catalog", "Browse", "week must be positive")
	case q.Month != nil && *q.Month < 0:
		return shared.Validation("catalog", "Browse", "month must not be negative")
	}
	return nil
}

// BrowseCatalogResult lists the matching questions.
type BrowseCatalogResult struct {
	Week      *int          `json:"week,omitempty"`
	Month     *int          `json:"month,omitempty"`
	Questions []QuestionDTO `json:"questions"`
}

// BrowseCatalogHandler handles BrowseCatalogQuery. It never touches storage.
type BrowseCatalogHandler struct {
	catalog *catalog.Catalog
}

// NewBrowseCatalogHandler creates the handler.
func NewBrowseCatalogHandler(cat *catalog.Catalog) *BrowseCatalogHandler {
	return &BrowseCatalogHandler{catalog: cat}
}

// Handle executes the query.
func (h *BrowseCatalogHandler) Handle(_ context.Context, q BrowseCatalogQuery) (*BrowseCatalogResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var selected []catalog.Question
	if q.Week != nil {
		selected = catalog.SelectByWeek(h.catalog, *q.Week)
	} else {
		selected = catalog.SelectByMonth(h.catalog, *q.Month)
	}

	result := &BrowseCatalogResult{
		Week:      q.Week,
		Month:     q.Month,
		Questions: make([]QuestionDTO, 0, len(selected)),
	}
	for _, question := range selected {
		result.Questions = append(result.Questions, toQuestionDTO(h.catalog, question))
	}
	return result, nil
}
