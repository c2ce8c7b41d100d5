package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/titinauta/journey-engine/internal/application/command"
	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// JourneyHandlers holds the application handlers behind the journey routes.
type JourneyHandlers struct {
	SaveAnswer       *command.SaveAnswerHandler
	GetQuestions     *query.GetQuestionsHandler
	GetProgress      *query.GetProgressHandler
	GetBadges        *query.GetBadgesHandler
	GetAnswerHistory *query.GetAnswerHistoryHandler
	ListModules      *query.ListModulesHandler
	GetIntroduction  *query.GetIntroductionHandler
	BrowseCatalog    *query.BrowseCatalogHandler
}

// JourneyHandler serves the child-scoped and catalog routes.
type JourneyHandler struct {
	h JourneyHandlers
}

// NewJourneyHandler creates the handler.
func NewJourneyHandler(h JourneyHandlers) *JourneyHandler {
	return &JourneyHandler{h: h}
}

// Register mounts the routes on an /api/v1 group.
func (j *JourneyHandler) Register(api *gin.RouterGroup, identity gin.HandlerFunc) {
	children := api.Group("/children/:childID", identity)
	{
		children.GET("/questions", j.GetQuestions)
		children.POST("/answers", j.SaveAnswer)
		children.GET("/answers", j.GetAnswers)
		children.GET("/progress", j.GetProgress)
		children.GET("/badges", j.GetBadges)
		children.GET("/modules", j.ListModules)
		children.GET("/introduction", j.GetIntroduction)
	}

	cat := api.Group("/catalog")
	{
		cat.GET("/weeks/:week", j.BrowseWeek)
		cat.GET("/months/:month", j.BrowseMonth)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Child routes
// ─────────────────────────────────────────────────────────────────────────────

// GetQuestions handles GET /children/:childID/questions.
func (j *JourneyHandler) GetQuestions(c *gin.Context) {
	res, err := j.h.GetQuestions.Handle(c.Request.Context(), query.GetQuestionsQuery{
		UserID:    UserID(c),
		ChildID:   c.Param("childID"),
		Caregiver: Caregiver(c),
		Trail:     c.Query("trail"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}

// saveAnswerRequest is the body of POST /children/:childID/answers.
type saveAnswerRequest struct {
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
}

// SaveAnswer handles POST /children/:childID/answers.
func (j *JourneyHandler) SaveAnswer(c *gin.Context) {
	var req saveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, shared.Validation("answer", "Save", "request body must be JSON with question_id and option_id"))
		return
	}

	res, err := j.h.SaveAnswer.Handle(c.Request.Context(), command.SaveAnswerCommand{
		UserID:        UserID(c),
		ChildID:       c.Param("childID"),
		QuestionID:    strings.TrimSpace(req.QuestionID),
		OptionID:      strings.TrimSpace(req.OptionID),
		Caregiver:     Caregiver(c),
		CorrelationID: RequestIDOf(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}

// GetAnswers handles GET /children/:childID/answers.
func (j *JourneyHandler) GetAnswers(c *gin.Context) {
	res, err := j.h.GetAnswerHistory.Handle(c.Request.Context(), query.GetAnswerHistoryQuery{
		UserID:  UserID(c),
		ChildID: c.Param("childID"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}

// GetProgress handles GET /children/:childID/progress.
func (j *JourneyHandler) GetProgress(c *gin.Context) {
	res, err := j.h.GetProgress.Handle(c.Request.Context(), query.GetProgressQuery{
		UserID:    UserID(c),
		ChildID:   c.Param("childID"),
		Caregiver: Caregiver(c),
		Trail:     c.Query("trail"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	if res.FromCache {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	RespondOK(c, http.StatusOK, res)
}

// GetBadges handles GET /children/:childID/badges.
func (j *JourneyHandler) GetBadges(c *gin.Context) {
	res, err := j.h.GetBadges.Handle(c.Request.Context(), query.GetBadgesQuery{
		UserID:    UserID(c),
		ChildID:   c.Param("childID"),
		Caregiver: Caregiver(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}

// ListModules handles GET /children/:childID/modules.
func (j *JourneyHandler) ListModules(c *gin.Context) {
	res, err := j.h.ListModules.Handle(c.Request.Context(), query.ListModulesQuery{
		UserID:    UserID(c),
		ChildID:   c.Param("childID"),
		Caregiver: Caregiver(c),
		Trail:     c.Query("trail"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}

// GetIntroduction handles GET /children/:childID/introduction.
func (j *JourneyHandler) GetIntroduction(c *gin.Context) {
	res, err := j.h.GetIntroduction.Handle(c.Request.Context(), query.GetIntroductionQuery{
		UserID:    UserID(c),
		ChildID:   c.Param("childID"),
		Caregiver: Caregiver(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog routes
// ─────────────────────────────────────────────────────────────────────────────

// BrowseWeek handles GET /catalog/weeks/:week.
func (j *JourneyHandler) BrowseWeek(c *gin.Context) {
	week, err := strconv.Atoi(c.Param("week"))
	if err != nil {
		RespondError(c, shared.Validation("catalog", "Browse", "week must be a number"))
		return
	}
	j.browse(c, query.BrowseCatalogQuery{Week: &week})
}

// BrowseMonth handles GET /catalog/months/:month.
func (j *JourneyHandler) BrowseMonth(c *gin.Context) {
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		RespondError(c, shared.Validation("catalog", "Browse", "month must be a number"))
		return
	}
	j.browse(c, query.BrowseCatalogQuery{Month: &month})
}

func (j *JourneyHandler) browse(c *gin.Context, q query.BrowseCatalogQuery) {
	res, err := j.h.BrowseCatalog.Handle(c.Request.Context(), q)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, res)
}
