package query

import (
	"context"
	"time"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// GetAnswerHistoryQuery asks for a child's answers, newest first.
type GetAnswerHistoryQuery struct {
	UserID  string
	ChildID string
}

// AnswerDTO is one stored answer.
type AnswerDTO struct {
	QuestionID       string    `json:"question_id"`
	ModuleID         string    `json:"module_id,omitempty"`
	SelectedOptionID string    `json:"selected_option_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// GetAnswerHistoryResult lists answers ordered by CreatedAt descending.
type GetAnswerHistoryResult struct {
	ChildID string      `json:"child_id"`
	Answers []AnswerDTO `json:"answers"`
}

// GetAnswerHistoryHandler handles GetAnswerHistoryQuery. Each call reads the
// store again; nothing is kept between calls.
type GetAnswerHistoryHandler struct {
	catalog  *catalog.Catalog
	children *access.Loader
	answers  journey.AnswerRepository
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewGetAnswerHistoryHandler creates the handler.
func NewGetAnswerHistoryHandler(
	cat *catalog.Catalog,
	children *access.Loader,
	answers journey.AnswerRepository,
	retrier *retry.Retrier,
	log *logger.Logger,
) *GetAnswerHistoryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetAnswerHistoryHandler{
		catalog:  cat,
		children: children,
		answers:  answers,
		retrier:  retrier,
		log:      log.With(logger.Component("get_answer_history")),
	}
}

// Handle executes the query.
func (h *GetAnswerHistoryHandler) Handle(ctx context.Context, q GetAnswerHistoryQuery) (*GetAnswerHistoryResult, error) {
	if err := h.children.Authorize(ctx, q.UserID, q.ChildID); err != nil {
		return nil, err
	}

	history, err := retry.DoWithData(ctx, h.retrier, func(ctx context.Context) ([]journey.Answer, error) {
		return h.answers.History(ctx, q.ChildID)
	})
	if err != nil {
		return nil, err
	}

	result := &GetAnswerHistoryResult{
		ChildID: q.ChildID,
		Answers: make([]AnswerDTO, 0, len(history)),
	}
	for _, a := range history {
		dto := AnswerDTO{
			QuestionID:       a.QuestionID,
			SelectedOptionID: a.SelectedOptionID,
			CreatedAt:        a.CreatedAt,
		}
		if question, err := h.catalog.Question(a.QuestionID); err == nil {
			dto.ModuleID = question.ModuleID
		}
		result.Answers = append(result.Answers, dto)
	}
	return result, nil
}
