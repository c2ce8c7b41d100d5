package query

import (
	"context"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/retry"
)

// GetIntroductionQuery renders the bot's opening message for a child.
type GetIntroductionQuery struct {
	UserID    string
	ChildID   string
	Caregiver string
}

// GetIntroductionResult is the rendered message.
type GetIntroductionResult struct {
	ChildID  string `json:"child_id"`
	Greeting string `json:"greeting"`
	Text     string `json:"text"`
}

// GetIntroductionHandler handles GetIntroductionQuery.
type GetIntroductionHandler struct {
	catalog      *catalog.Catalog
	children     *access.Loader
	personalizer *personalization.Engine
	retrier      *retry.Retrier
	log          *logger.Logger
}

// NewGetIntroductionHandler creates the handler.
func NewGetIntroductionHandler(
	cat *catalog.Catalog,
	children *access.Loader,
	personalizer *personalization.Engine,
	retrier *retry.Retrier,
	log *logger.Logger,
) *GetIntroductionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetIntroductionHandler{
		catalog:      cat,
		children:     children,
		personalizer: personalizer,
		retrier:      retrier,
		log:          log.With(logger.Component("get_introduction")),
	}
}

// Handle executes the query. A child without a birthdate still gets an
// introduction; only the profile is needed.
func (h *GetIntroductionHandler) Handle(ctx context.Context, q GetIntroductionQuery) (*GetIntroductionResult, error) {
	if err := h.children.Authorize(ctx, q.UserID, q.ChildID); err != nil {
		return nil, err
	}
	profile, err := h.children.Profile(ctx, h.retrier, q.ChildID)
	if err != nil {
		return nil, err
	}

	greeting := personalization.TimeBasedGreeting(h.children.Now())
	pctx := personalization.NewContext(*profile, q.Caregiver).With("greeting", greeting)

	return &GetIntroductionResult{
		ChildID:  q.ChildID,
		Greeting: greeting,
		Text:     h.personalizer.Personalize(h.catalog.Introduction(), pctx),
	}, nil
}
