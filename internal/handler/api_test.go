package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/config"
	"github.com/noah-isme/perception-api/internal/handler"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
	"github.com/noah-isme/perception-api/internal/router"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/pkg/ai"
)

const (
	teacherEmail = "teacher@example.com"
	studentEmail = "student@example.com"
	testEmailHdr = "X-Test-Email"
)

type fixedEvaluator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *fixedEvaluator) Evaluate(_ context.Context, input ai.EvaluationInput) (ai.EvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return ai.EvaluationResult{}, errors.New("engine unavailable")
	}
	return ai.EvaluationResult{
		Scores:   ai.RubricScores{Clarity: 8, Relevance: 6, Accuracy: 7, Completeness: 9},
		Feedback: "You explained " + input.StudentAnswer + " clearly.",
	}, nil
}

func (e *fixedEvaluator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fixedEvaluator) setFail(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = fail
}

type apiEnv struct {
	app       *fiber.App
	db        *gorm.DB
	evaluator *fixedEvaluator
	broker    service.EventBroker
}

type envelope[T any] struct {
	Success bool                   `json:"success"`
	Data    T                      `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]interface{} `json:"details"`
	Message string                 `json:"message"`
}

// testAuth stands in for the token verifier: the caller's email comes from a header.
func testAuth(c *fiber.Ctx) error {
	if email := strings.TrimSpace(c.Get(testEmailHdr)); email != "" {
		c.Locals(middleware.LocalUserEmail, models.NormalizeEmail(email))
	}
	return c.Next()
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	evaluator := &fixedEvaluator{}

	userRepo := repository.NewUserRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	paperRepo := repository.NewPaperRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	broker := service.NewEventBroker(nil, "", nil, logger)
	cache := service.NewPaperListCache(nil, time.Minute, logger)
	activityService := service.NewActivityService(activityRepo, paperRepo, logger)
	lifecycle := service.NewLifecycle(activityService, rosterRepo, broker, cache, logger)

	identityService := service.NewIdentityService(userRepo, nil, time.Minute, broker, validate, logger)
	rosterService := service.NewRosterService(rosterRepo, userRepo, lifecycle, validate, logger)
	paperService := service.NewPaperService(paperRepo, submissionRepo, rosterRepo, cache, lifecycle, validate, logger)
	submissionService := service.NewSubmissionService(paperRepo, submissionRepo, rosterRepo, lifecycle, validate, logger)
	evaluationService := service.NewEvaluationService(paperRepo, submissionRepo, evaluator, lifecycle, service.EvaluationConfig{Concurrency: 2}, logger)
	exportService := service.NewExportService(paperRepo, submissionRepo, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "Perception Test", AppEnv: "test"}, router.Dependencies{
		IdentityHandler:    handler.NewIdentityHandler(identityService, logger),
		RosterHandler:      handler.NewRosterHandler(rosterService, logger),
		PaperHandler:       handler.NewPaperHandler(paperService, logger),
		SubmissionHandler:  handler.NewSubmissionHandler(submissionService, logger),
		EvaluationHandler:  handler.NewEvaluationHandler(evaluationService, nil, logger),
		ActivityHandler:    handler.NewActivityHandler(activityService, logger),
		ExportHandler:      handler.NewExportHandler(exportService, logger),
		EventHandler:       handler.NewEventHandler(identityService, logger),
		JWTMiddleware:      testAuth,
		IdentityMiddleware: middleware.ResolveIdentity(identityService, logger),
	})

	return &apiEnv{app: app, db: db, evaluator: evaluator, broker: broker}
}

func (e *apiEnv) do(t *testing.T, method, path, email string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set(testEmailHdr, email)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *apiEnv) expect(t *testing.T, status int, method, path, email string, body interface{}) {
	t.Helper()
	resp := e.do(t, method, path, email, body)
	defer resp.Body.Close()
	if resp.StatusCode != status {
		raw, _ := io.ReadAll(resp.Body)
		require.Failf(t, "unexpected status", "%s %s: want %d got %d: %s", method, path, status, resp.StatusCode, raw)
	}
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

// seedClassroom registers a teacher and the given students and rosters them.
func (e *apiEnv) seedClassroom(t *testing.T, students ...string) {
	t.Helper()
	if len(students) == 0 {
		students = []string{studentEmail}
	}

	e.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/users", teacherEmail, map[string]string{"role": "teacher"})
	for _, email := range students {
		e.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/users", email, map[string]string{"role": "student"})
		e.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/roster/students", teacherEmail, map[string]string{"student_email": email})
	}
}

func (e *apiEnv) createPaper(t *testing.T, questions int) uint {
	t.Helper()

	payload := map[string]interface{}{"title": "Thermodynamics"}
	items := make([]map[string]string, 0, questions)
	for i := 1; i <= questions; i++ {
		items = append(items, map[string]string{
			"question": fmt.Sprintf("Question %d?", i),
			"answer":   fmt.Sprintf("Model answer %d", i),
		})
	}
	payload["questions"] = items

	resp := e.do(t, http.MethodPost, "/api/v1/papers", teacherEmail, payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body envelope[struct {
		ID uint `json:"id"`
	}]
	decodeResponse(t, resp, &body)
	require.NotZero(t, body.Data.ID)
	return body.Data.ID
}

func paperPath(id uint, suffix string) string {
	return fmt.Sprintf("/api/v1/papers/%d%s", id, suffix)
}

func answersPayload(final bool, answers ...string) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(answers))
	for i, answer := range answers {
		items = append(items, map[string]interface{}{"order": i + 1, "answer": answer})
	}
	return map[string]interface{}{"answers": items, "final": final}
}
