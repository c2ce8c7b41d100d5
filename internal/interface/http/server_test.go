package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/application/command"
	"github.com/titinauta/journey-engine/internal/application/eventhandler"
	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/application/saga"
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/internal/infrastructure/external/profile"
	"github.com/titinauta/journey-engine/internal/infrastructure/messaging"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/memory"
	httpserver "github.com/titinauta/journey-engine/internal/interface/http"
	"github.com/titinauta/journey-engine/internal/interface/http/handlers"
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success   bool               `json:"success"`
	Data      json.RawMessage    `json:"data"`
	Error     *handlers.APIError `json:"error"`
	RequestID string             `json:"request_id"`
}

type testAPI struct {
	handler http.Handler
	store   *memory.Store
	health  *handlers.CompositeHealthChecker
}

func newTestAPI(t *testing.T, mutate func(*httpserver.Config)) *testAPI {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)

	profiles := profile.NewStaticProvider(
		child.Child{ID: "c1", Birthdate: timeutil.Date(2026, time.January, 5), Gender: child.GenderFemale, DisplayName: "Ana"},
		child.Child{ID: "c2", DisplayName: "Sem Data"},
	)
	profiles.Grant("u1", "c1")
	profiles.Grant("u1", "c2")

	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	log := logger.Nop()
	store := memory.NewStore()
	cache := memory.NewProgressCache()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: log})
	t.Cleanup(func() { _ = bus.Close() })
	require.NoError(t, bus.Subscribe(shared.EventAnswerRecorded, eventhandler.NewOnAnswerRecordedHandler(cache, log).Handle))

	loader := access.NewLoader(profiles, profiles, child.NewWindowResolver(), func() time.Time { return now }, log)
	calc := journey.NewProgressCalculator(cat)
	engine := journey.NewAchievementEngine(cat.Badges())
	pers := personalization.NewEngine()
	retrier := query.NewReadRetrier(log)
	flow := saga.NewBadgeFlowSaga(store, calc, engine, bus, log, saga.DefaultBadgeFlowConfig())

	cfg := httpserver.DefaultConfig()
	cfg.RequireUser = true
	if mutate != nil {
		mutate(&cfg)
	}

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", handlers.NewPingCheck(store))

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		Journey: handlers.JourneyHandlers{
			SaveAnswer:       command.NewSaveAnswerHandler(cat, loader, store, calc, flow, pers, bus, log),
			GetQuestions:     query.NewGetQuestionsHandler(cat, loader, store, pers, retrier, log),
			GetProgress:      query.NewGetProgressHandler(cat, loader, store, calc, pers, cache, retrier, log),
			GetBadges:        query.NewGetBadgesHandler(loader, store, store, engine, flow, pers, retrier, log),
			GetAnswerHistory: query.NewGetAnswerHistoryHandler(cat, loader, store, retrier, log),
			ListModules:      query.NewListModulesHandler(cat, loader, store, calc, pers, retrier, log),
			GetIntroduction:  query.NewGetIntroductionHandler(cat, loader, pers, retrier, log),
			BrowseCatalog:    query.NewBrowseCatalogHandler(cat),
		},
		Logger:        log,
		HealthChecker: health,
	})

	return &testAPI{handler: srv.Handler(), store: store, health: health}
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(handlers.HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestSaveAnswer(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, env := api.do(t, http.MethodPost, "/api/v1/children/c1/answers", "u1",
		map[string]string{"question_id": "q-head-tummy-time", "option_id": "short"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(handlers.HeaderRequestID))

	var res command.SaveAnswerResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Success)
	require.NotNil(t, res.Correct)
	assert.True(t, *res.Correct)
	assert.NotEmpty(t, res.Feedback)
	require.Len(t, res.NewBadges, 1)
	assert.Equal(t, "first-step", res.NewBadges[0].ID)
	assert.Contains(t, res.NewBadges[0].Description, "Ana")

	// Re-answering replaces the row and unlocks nothing new.
	rec, env = api.do(t, http.MethodPost, "/api/v1/children/c1/answers", "u1",
		map[string]string{"question_id": "q-head-tummy-time", "option_id": "long"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.NewBadges)
	require.NotNil(t, res.Correct)
	assert.False(t, *res.Correct)

	history, err := api.store.History(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "long", history[0].SelectedOptionID)
}

func TestSaveAnswer_Errors(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name   string
		path   string
		user   string
		body   any
		status int
		code   string
	}{
		{"malformed body", "/api/v1/children/c1/answers", "u1", "{not json", http.StatusBadRequest, "validation_error"},
		{"missing option", "/api/v1/children/c1/answers", "u1", map[string]string{"question_id": "q-head-tummy-time"}, http.StatusBadRequest, "validation_error"},
		{"unknown question", "/api/v1/children/c1/answers", "u1", map[string]string{"question_id": "q-nope", "option_id": "sim"}, http.StatusNotFound, "not_found"},
		{"unknown option", "/api/v1/children/c1/answers", "u1", map[string]string{"question_id": "q-head-tummy-time", "option_id": "maybe"}, http.StatusBadRequest, "validation_error"},
		{"no caller", "/api/v1/children/c1/answers", "", map[string]string{"question_id": "q-head-tummy-time", "option_id": "short"}, http.StatusUnauthorized, "unauthenticated"},
		{"other caller", "/api/v1/children/c1/answers", "u2", map[string]string{"question_id": "q-head-tummy-time", "option_id": "short"}, http.StatusForbidden, "forbidden"},
		{"unknown child", "/api/v1/children/c9/answers", "u1", map[string]string{"question_id": "q-head-tummy-time", "option_id": "short"}, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := api.do(t, http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestGetQuestions(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, env := api.do(t, http.MethodGet, "/api/v1/children/c1/questions?caregiver=vov%C3%B3", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res query.GetQuestionsResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.AgeMonths)
	assert.Equal(t, catalog.AgeWindow{Min: 1, Max: 4}, res.Window)
	assert.NotEmpty(t, res.Questions)

	rec, env = api.do(t, http.MethodGet, "/api/v1/children/c1/questions?trail=pets", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/children/c2/questions", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestGetProgress_CacheInvalidatedOnSave(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, _ := api.do(t, http.MethodGet, "/api/v1/children/c1/progress", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec, _ = api.do(t, http.MethodGet, "/api/v1/children/c1/progress", "u1", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec, _ = api.do(t, http.MethodPost, "/api/v1/children/c1/answers", "u1",
		map[string]string{"question_id": "q-smile-response", "option_id": "sim"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env := api.do(t, http.MethodGet, "/api/v1/children/c1/progress", "u1", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var res query.GetProgressResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.AgeMonths)
	assert.Equal(t, len(res.Modules), res.TotalModules)

	answered := 0
	for _, m := range res.Modules {
		answered += m.AnsweredCount
	}
	assert.Equal(t, 1, answered)
}

func TestReadRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, _ := api.do(t, http.MethodPost, "/api/v1/children/c1/answers", "u1",
		map[string]string{"question_id": "q-newborn-light", "option_id": "sim"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("answers", func(t *testing.T) {
		rec, env := api.do(t, http.MethodGet, "/api/v1/children/c1/answers", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res query.GetAnswerHistoryResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		require.Len(t, res.Answers, 1)
		assert.Equal(t, "q-newborn-light", res.Answers[0].QuestionID)
		assert.Equal(t, "baby-newborn-senses", res.Answers[0].ModuleID)
	})

	t.Run("badges", func(t *testing.T) {
		rec, env := api.do(t, http.MethodGet, "/api/v1/children/c1/badges", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res query.GetBadgesResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		require.Len(t, res.Unlocked, 1)
		assert.Equal(t, "first-step", res.Unlocked[0].ID)
		assert.NotEmpty(t, res.Locked)
	})

	t.Run("modules", func(t *testing.T) {
		rec, env := api.do(t, http.MethodGet, "/api/v1/children/c1/modules?trail=baby", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res query.ListModulesResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.NotEmpty(t, res.Modules)
	})

	t.Run("introduction", func(t *testing.T) {
		rec, env := api.do(t, http.MethodGet, "/api/v1/children/c1/introduction", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res query.GetIntroductionResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.NotEmpty(t, res.Greeting)
		assert.NotContains(t, res.Text, "{childName}")
	})
}

func TestBrowseCatalog(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, env := api.do(t, http.MethodGet, "/api/v1/catalog/weeks/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res query.BrowseCatalogResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.Questions)

	rec, env = api.do(t, http.MethodGet, "/api/v1/catalog/months/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/catalog/weeks/first", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/catalog/weeks/0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	api := newTestAPI(t, func(c *httpserver.Config) { c.APIKeys = []string{"secret"} })

	rec, env := api.do(t, http.MethodGet, "/api/v1/catalog/weeks/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/weeks/1", nil)
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	rec, _ = api.do(t, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, _ := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	api.store.FailWith = errors.New("disk gone")
	rec, _ = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store")

	rec, _ = api.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNoRoute(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, env := api.do(t, http.MethodGet, "/api/v1/nothing", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}
