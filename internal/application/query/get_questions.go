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

// ══════════════════════════════════════════════════════════════════════════════
// GET QUESTIONS FOR CHILD QUERY
// Age-appropriate questions for a child: the child's window is resolved from
// the birthdate and every question overlapping it is returned in journey order.
// ══════════════════════════════════════════════════════════════════════════════

// GetQuestionsQuery contains the parameters.
type GetQuestionsQuery struct {
	UserID    string
	ChildID   string
	Caregiver string
	// Trail restricts the result to one trail when set.
	Trail string
}

// GetQuestionsResult is the selected question list.
type GetQuestionsResult struct {
	ChildID       string            `json:"child_id"`
	AgeMonths     int               `json:"age_months"`
	Window        catalog.AgeWindow `json:"window"`
	Questions     []QuestionDTO     `json:"questions"`
	AnsweredCount int               `json:"answered_count"`
}

// GetQuestionsHandler handles GetQuestionsQuery.
type GetQuestionsHandler struct {
	catalog      *catalog.Catalog
	children     *access.Loader
	answers      journey.AnswerRepository
	personalizer *personalization.Engine
	retrier      *retry.Retrier
	log          *logger.Logger
}

// NewGetQuestionsHandler creates the handler.
func NewGetQuestionsHandler(
	cat *catalog.Catalog,
	children *access.Loader,
	answers journey.AnswerRepository,
	personalizer *personalization.Engine,
	retrier *retry.Retrier,
	log *logger.Logger,
) *GetQuestionsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetQuestionsHandler{
		catalog:      cat,
		children:     children,
		answers:      answers,
		personalizer: personalizer,
		retrier:      retrier,
		log:          log.With(logger.Component("get_questions")),
	}
}

// Handle executes the query.
func (h *GetQuestionsHandler) Handle(ctx context.Context, q GetQuestionsQuery) (*GetQuestionsResult, error) {
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

	selected := catalog.SelectForWindow(h.catalog, view.Window)
	if trail != "" {
		selected = catalog.FilterByTrail(h.catalog, selected, trail)
	}

	current := make(map[string]string, len(history))
	for _, a := range history {
		current[a.QuestionID] = a.SelectedOptionID
	}

	pctx := personalization.NewContext(view.Child, q.Caregiver)
	result := &GetQuestionsResult{
		ChildID:   q.ChildID,
		AgeMonths: view.AgeMonths,
		Window:    view.Window,
		Questions: make([]QuestionDTO, 0, len(selected)),
	}
	for _, question := range selected {
		dto := toQuestionDTO(h.catalog, h.personalizer.PersonalizeQuestion(question, pctx))
		if opt, ok := current[question.ID]; ok {
			dto.AnsweredOptionID = opt
			result.AnsweredCount++
		}
		result.Questions = append(result.Questions, dto)
	}

	h.log.Debug("questions selected",
		logger.ChildID(q.ChildID),
		logger.Int("age_months", view.AgeMonths),
		logger.Int("count", len(result.Questions)),
	)
	return result, nil
}
