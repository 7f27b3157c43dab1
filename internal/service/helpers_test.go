package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
	"github.com/noah-isme/perception-api/pkg/ai"
)

const (
	teacherEmail = "teacher@example.com"
	studentEmail = "student@example.com"
)

var (
	teacher = Principal{Email: teacherEmail, Role: models.RoleTeacher}
	student = Principal{Email: studentEmail, Role: models.RoleStudent}
)

type stubEvaluator struct {
	mu        sync.Mutex
	inputs    []ai.EvaluationInput
	active    int32
	maxActive int32
	delay     time.Duration
	scores    ai.RubricScores
	feedback  string
	fail      func(ai.EvaluationInput) error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, input ai.EvaluationInput) (ai.EvaluationResult, error) {
	current := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		seen := atomic.LoadInt32(&s.maxActive)
		if current <= seen || atomic.CompareAndSwapInt32(&s.maxActive, seen, current) {
			break
		}
	}

	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ai.EvaluationResult{}, ctx.Err()
		}
	}

	if s.fail != nil {
		if err := s.fail(input); err != nil {
			return ai.EvaluationResult{}, err
		}
	}

	feedback := s.feedback
	if feedback == "" {
		feedback = "You covered the main idea."
	}
	return ai.EvaluationResult{Scores: s.scores, Feedback: feedback}, nil
}

func (s *stubEvaluator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event dto.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(eventType string) []dto.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []dto.Event
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type testEnv struct {
	db          *gorm.DB
	redis       *redis.Client
	mini        *miniredis.Miniredis
	users       repository.UserRepository
	roster      repository.RosterRepository
	papers      repository.PaperRepository
	submissions repository.SubmissionRepository
	activityLog repository.ActivityLogRepository
	evaluator   *stubEvaluator
	events      *recordingPublisher
	cache       *PaperListCache
	lifecycle   *Lifecycle

	identity    IdentityService
	rosterSvc   RosterService
	paperSvc    PaperService
	submitSvc   SubmissionService
	evalSvc     EvaluationService
	exportSvc   ExportService
	activitySvc ActivityService
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db := setupServiceDB(t)
	logger := zerolog.Nop()
	validate := validator.New()

	env := &testEnv{
		db:          db,
		redis:       redisClient,
		mini:        mini,
		users:       repository.NewUserRepository(db),
		roster:      repository.NewRosterRepository(db),
		papers:      repository.NewPaperRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		activityLog: repository.NewActivityLogRepository(db),
		evaluator:   &stubEvaluator{scores: ai.RubricScores{Clarity: 8, Relevance: 6, Accuracy: 7, Completeness: 9, Average: 1}},
		events:      &recordingPublisher{},
	}

	env.activitySvc = NewActivityService(env.activityLog, env.papers, logger)
	env.cache = NewPaperListCache(redisClient, time.Minute, logger)
	env.lifecycle = NewLifecycle(env.activitySvc, env.roster, env.events, env.cache, logger)
	env.identity = NewIdentityService(env.users, redisClient, time.Hour, nil, validate, logger)
	env.rosterSvc = NewRosterService(env.roster, env.users, env.lifecycle, validate, logger)
	env.paperSvc = NewPaperService(env.papers, env.submissions, env.roster, env.cache, env.lifecycle, validate, logger)
	env.submitSvc = NewSubmissionService(env.papers, env.submissions, env.roster, env.lifecycle, validate, logger)
	env.evalSvc = NewEvaluationService(env.papers, env.submissions, env.evaluator, env.lifecycle, EvaluationConfig{Concurrency: 2, Timeout: 5 * time.Second}, logger)
	env.exportSvc = NewExportService(env.papers, env.submissions, logger)
	return env
}

// register creates the user rows and roster edge used by most tests.
func (e *testEnv) seedClassroom(t *testing.T, students ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.identity.Register(ctx, dto.RegisterUserRequest{Email: teacherEmail, Role: models.RoleTeacher})
	require.NoError(t, err)
	if len(students) == 0 {
		students = []string{studentEmail}
	}
	for _, email := range students {
		_, err := e.identity.Register(ctx, dto.RegisterUserRequest{Email: email, Role: models.RoleStudent})
		require.NoError(t, err)
		_, err = e.rosterSvc.AddStudent(ctx, teacher, dto.RosterAddRequest{StudentEmail: email})
		require.NoError(t, err)
	}
}

func (e *testEnv) createPaper(t *testing.T, questions int) dto.TeacherPaperView {
	t.Helper()
	req := dto.PaperCreateRequest{Title: "Mechanics"}
	for i := 1; i <= questions; i++ {
		req.Questions = append(req.Questions, dto.QuestionRequest{
			Question: fmt.Sprintf("Question %d?", i),
			Answer:   fmt.Sprintf("Model answer %d", i),
		})
	}
	view, err := e.paperSvc.Create(context.Background(), teacher, req)
	require.NoError(t, err)
	return view
}

func (e *testEnv) submit(t *testing.T, who Principal, paperID uint, final bool, answers ...string) dto.SubmissionSavedResponse {
	t.Helper()
	req := dto.SubmissionUpsertRequest{Final: final}
	for i, answer := range answers {
		req.Answers = append(req.Answers, dto.AnswerRequest{Order: i + 1, Answer: answer})
	}
	saved, err := e.submitSvc.Upsert(context.Background(), who, paperID, req)
	require.NoError(t, err)
	return saved
}

func studentPrincipal(email string) Principal {
	return Principal{Email: email, Role: models.RoleStudent}
}
