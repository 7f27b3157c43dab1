package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/pkg/ai"
)

func TestEvaluateScoresEverySubmission(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	paper := env.createPaper(t, 3)

	env.submit(t, studentPrincipal("a@example.com"), paper.ID, true, "one", "two", "three")
	env.submit(t, studentPrincipal("b@example.com"), paper.ID, false, "only the first")

	summary, err := env.evalSvc.Evaluate(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.True(t, summary.Evaluated)
	require.Equal(t, 2, summary.Submissions)
	require.Equal(t, 4, summary.Requests, "blank answers never reach the engine")
	require.Equal(t, 4, env.evaluator.calls())

	full := loadSubmission(t, env, paper.ID, "a@example.com")
	require.InDelta(t, 22.5, full.TotalScore, 1e-9, "sum of per-question averages, engine average ignored")

	partial := loadSubmission(t, env, paper.ID, "b@example.com")
	require.InDelta(t, 7.5, partial.TotalScore, 1e-9)
	require.True(t, partial.Answers[2].Scored)
	require.Zero(t, partial.Answers[2].Score.Average)
	require.Equal(t, BlankAnswerFeedback, partial.Answers[2].Feedback)

	stored, err := env.papers.GetByID(ctx, paper.ID)
	require.NoError(t, err)
	require.True(t, stored.Evaluated)
	require.NotNil(t, stored.EvaluatedAt)
	for _, submission := range []models.Submission{full, partial} {
		require.True(t, submission.IsScoredFor(stored))
		require.LessOrEqual(t, submission.TotalScore, stored.MaxScore())
	}

	require.Len(t, env.events.ofType(dto.EventPaperEvaluated), 3)
}

func TestEvaluateClampsAndSanitisesEngineOutput(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	env.evaluator.scores = ai.RubricScores{Clarity: 14, Relevance: -2, Accuracy: 10, Completeness: 4, Average: 99}
	env.evaluator.feedback = "<b>You</b> forgot friction."
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "answer")

	_, err := env.evalSvc.Evaluate(context.Background(), teacher, paper.ID)
	require.NoError(t, err)

	stored := loadSubmission(t, env, paper.ID, studentEmail)
	score := stored.Answers[0].Score
	require.Equal(t, 10.0, score.Clarity)
	require.Zero(t, score.Relevance)
	require.InDelta(t, 6.0, score.Average, 1e-9)
	require.Equal(t, "You forgot friction.", stored.Answers[0].Feedback)
}

func TestEvaluatePassesQuestionModelAndStudentAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "my attempt")

	_, err := env.evalSvc.Evaluate(context.Background(), teacher, paper.ID)
	require.NoError(t, err)

	require.Equal(t, ai.EvaluationInput{
		Question:      "Question 1?",
		ModelAnswer:   "Model answer 1",
		StudentAnswer: "my attempt",
	}, env.evaluator.inputs[0])
}

func TestEvaluateRequiresSubmissions(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	paper := env.createPaper(t, 1)

	_, err := env.evalSvc.Evaluate(context.Background(), teacher, paper.ID)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, ErrNoSubmissions)
}

func TestEvaluateTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "answer")

	_, err := env.evalSvc.Evaluate(ctx, teacher, paper.ID)
	require.NoError(t, err)

	_, err = env.evalSvc.Evaluate(ctx, teacher, paper.ID)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, 1, env.evaluator.calls())
}

func TestEvaluateEngineFailureCommitsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	paper := env.createPaper(t, 2)
	env.submit(t, studentPrincipal("a@example.com"), paper.ID, true, "fine", "fine")
	env.submit(t, studentPrincipal("b@example.com"), paper.ID, true, "fine", "breaks the engine")

	boom := errors.New("rate limited")
	env.evaluator.fail = func(input ai.EvaluationInput) error {
		if strings.Contains(input.StudentAnswer, "breaks") {
			return boom
		}
		return nil
	}

	_, err := env.evalSvc.Evaluate(ctx, teacher, paper.ID)
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, boom)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	require.Equal(t, paper.ID, evalErr.PaperID)
	require.Equal(t, "b@example.com", evalErr.StudentEmail)
	require.Equal(t, 2, evalErr.Order)

	stored, err := env.papers.GetByID(ctx, paper.ID)
	require.NoError(t, err)
	require.False(t, stored.Evaluated)
	for _, email := range []string{"a@example.com", "b@example.com"} {
		submission := loadSubmission(t, env, paper.ID, email)
		require.Zero(t, submission.TotalScore)
		for _, answer := range submission.Answers {
			require.False(t, answer.Scored)
		}
	}

	var entries int64
	require.NoError(t, env.db.Model(&models.ActivityLog{}).Where("action = ?", models.ActionPaperEvaluated).Count(&entries).Error)
	require.Zero(t, entries)
}

func TestEvaluateBoundsConcurrency(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t, "a@example.com", "b@example.com", "c@example.com")
	env.evaluator.delay = 10 * time.Millisecond
	paper := env.createPaper(t, 3)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		env.submit(t, studentPrincipal(email), paper.ID, true, "x", "y", "z")
	}

	_, err := env.evalSvc.Evaluate(context.Background(), teacher, paper.ID)
	require.NoError(t, err)
	require.Equal(t, 9, env.evaluator.calls())
	require.LessOrEqual(t, env.evaluator.maxActive, int32(2))
}

func TestEvaluateTimeoutIsUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	env.evaluator.delay = time.Second
	env.evalSvc = NewEvaluationService(env.papers, env.submissions, env.evaluator, env.lifecycle, EvaluationConfig{Concurrency: 1, Timeout: 20 * time.Millisecond}, zerolog.Nop())
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "slow")

	_, err := env.evalSvc.Evaluate(context.Background(), teacher, paper.ID)
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluateAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "answer")

	_, err := env.evalSvc.Evaluate(ctx, Principal{Email: "other@example.com", Role: models.RoleTeacher}, paper.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.evalSvc.Evaluate(ctx, student, paper.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.evalSvc.Evaluate(ctx, teacher, paper.ID+7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluateWithoutEngine(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	env.evalSvc = NewEvaluationService(env.papers, env.submissions, nil, env.lifecycle, EvaluationConfig{}, zerolog.Nop())
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "answer")

	_, err := env.evalSvc.Evaluate(context.Background(), teacher, paper.ID)
	require.ErrorIs(t, err, ErrUpstream)
}

func TestResetClearsScoresAndKeepsAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 2)
	env.submit(t, student, paper.ID, true, "kept", "")

	_, err := env.evalSvc.Reset(ctx, teacher, paper.ID)
	require.ErrorIs(t, err, ErrConflict, "reset requires an evaluated paper")

	_, err = env.evalSvc.Evaluate(ctx, teacher, paper.ID)
	require.NoError(t, err)
	stored, storedPaper := loadSubmission(t, env, paper.ID, studentEmail), reloadPaper(t, env, paper.ID)
	require.True(t, storedPaper.Evaluated)
	require.True(t, stored.IsScoredFor(storedPaper))
	firstScoring := scoringState(stored)

	summary, err := env.evalSvc.Reset(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.False(t, summary.Evaluated)
	require.Equal(t, 1, summary.Submissions)

	stored = loadSubmission(t, env, paper.ID, studentEmail)
	require.False(t, stored.IsScoredFor(reloadPaper(t, env, paper.ID)))
	require.Zero(t, stored.TotalScore)
	require.Nil(t, stored.EvaluatedAt)
	require.True(t, stored.Finalized)
	require.Equal(t, "kept", stored.Answers[0].Answer)
	for _, answer := range stored.Answers {
		require.False(t, answer.Scored)
		require.Empty(t, answer.Feedback)
		require.Zero(t, answer.Score)
	}

	_, err = env.evalSvc.Evaluate(ctx, teacher, paper.ID)
	require.NoError(t, err, "a reset paper can be evaluated again")
	stored = loadSubmission(t, env, paper.ID, studentEmail)
	require.True(t, stored.IsScoredFor(reloadPaper(t, env, paper.ID)))
	require.Equal(t, firstScoring, scoringState(stored), "re-evaluation reproduces the first scores")

	entries, err := env.activitySvc.ListForPaper(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.Equal(t, models.ActionPaperEvaluated, entries[0].Action)
}

type answerScoring struct {
	Order    int
	Answer   string
	Score    models.Score
	Feedback string
	Scored   bool
}

type submissionScoring struct {
	TotalScore float64
	Answers    []answerScoring
}

func scoringState(submission models.Submission) submissionScoring {
	state := submissionScoring{TotalScore: submission.TotalScore}
	for _, answer := range submission.Answers {
		state.Answers = append(state.Answers, answerScoring{
			Order:    answer.Order,
			Answer:   answer.Answer,
			Score:    answer.Score,
			Feedback: answer.Feedback,
			Scored:   answer.Scored,
		})
	}
	return state
}

func reloadPaper(t *testing.T, env *testEnv, paperID uint) models.Paper {
	t.Helper()
	paper, err := env.papers.GetByID(context.Background(), paperID)
	require.NoError(t, err)
	return paper
}
