package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
	"github.com/noah-isme/perception-api/pkg/ai"
)

// BlankAnswerFeedback is stored for questions the student left empty.
const BlankAnswerFeedback = "You did not answer this question."

// EvaluationConfig bounds the fan-out to the evaluation engine.
type EvaluationConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// EvaluationService scores every submission of a paper and resets evaluations.
type EvaluationService interface {
	Evaluate(ctx context.Context, principal Principal, paperID uint) (dto.EvaluationSummary, error)
	Reset(ctx context.Context, principal Principal, paperID uint) (dto.EvaluationSummary, error)
}

type evaluationService struct {
	papers      repository.PaperRepository
	submissions repository.SubmissionRepository
	evaluator   ai.Evaluator
	lifecycle   *Lifecycle
	cfg         EvaluationConfig
	sanitizer   plainText
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEvaluationService constructs the evaluation trigger. A nil evaluator makes Evaluate fail with ErrEvaluatorUnavailable.
func NewEvaluationService(papers repository.PaperRepository, submissions repository.SubmissionRepository, evaluator ai.Evaluator, lifecycle *Lifecycle, cfg EvaluationConfig, logger zerolog.Logger) EvaluationService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &evaluationService{
		papers:      papers,
		submissions: submissions,
		evaluator:   evaluator,
		lifecycle:   lifecycle,
		cfg:         cfg,
		sanitizer:   newPlainText(),
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/perception-api/internal/service/evaluation"),
		now:         time.Now,
	}
}

type scoringJob struct {
	submission int
	answer     int
	order      int
}

func (s *evaluationService) Evaluate(ctx context.Context, principal Principal, paperID uint) (dto.EvaluationSummary, error) {
	paper, err := ownedPaper(ctx, s.papers, principal, paperID)
	if err != nil {
		return dto.EvaluationSummary{}, err
	}
	if paper.Evaluated {
		return dto.EvaluationSummary{}, ErrPaperEvaluated
	}
	if s.evaluator == nil {
		return dto.EvaluationSummary{}, ErrEvaluatorUnavailable
	}

	submissions, err := s.submissions.ListByPaper(ctx, paperID)
	if err != nil {
		return dto.EvaluationSummary{}, err
	}
	if len(submissions) == 0 {
		return dto.EvaluationSummary{}, ErrNoSubmissions
	}

	spanCtx, span := s.tracer.Start(ctx, "evaluation.evaluate", trace.WithAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.Int("paper.submissions", len(submissions)),
	))
	defer span.End()

	jobs, err := planScoring(paper, submissions)
	if err != nil {
		return dto.EvaluationSummary{}, err
	}

	if err := s.score(spanCtx, paper, submissions, jobs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn().Err(err).Uint("paper_id", paperID).Msg("evaluation aborted")
		return dto.EvaluationSummary{}, err
	}

	for i := range submissions {
		// The paper may only be flagged evaluated once every answer row carries a score.
		if !submissions[i].IsScoredFor(paper) {
			return dto.EvaluationSummary{}, fmt.Errorf("submission %d left unscored questions", submissions[i].ID)
		}
		submissions[i].RecomputeTotal()
	}

	evaluatedAt := s.now().UTC()
	if err := s.submissions.SaveEvaluation(spanCtx, paperID, submissions, evaluatedAt); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return dto.EvaluationSummary{}, ErrConcurrentUpdate
		}
		return dto.EvaluationSummary{}, err
	}
	paper.Evaluated = true
	paper.EvaluatedAt = &evaluatedAt

	s.logger.Info().Uint("paper_id", paperID).Int("submissions", len(submissions)).Int("requests", len(jobs)).Msg("paper evaluated")
	s.lifecycle.apply(spanCtx, transition{
		paper:     paper,
		actor:     principal,
		action:    models.ActionPaperEvaluated,
		eventType: dto.EventPaperEvaluated,
		metadata:  map[string]interface{}{"submissions": len(submissions), "engine_requests": len(jobs)},
		audience:  s.lifecycle.paperAudience(spanCtx, paper),
		audit:     true,
	})

	return dto.EvaluationSummary{
		PaperID:     paperID,
		Submissions: len(submissions),
		Requests:    len(jobs),
		MaxScore:    paper.MaxScore(),
		Evaluated:   true,
	}, nil
}

// planScoring scores blank answers locally and returns the answers that need the engine.
func planScoring(paper models.Paper, submissions []models.Submission) ([]scoringJob, error) {
	var jobs []scoringJob
	for i := range submissions {
		submission := &submissions[i]
		rows := make(map[int]int, len(submission.Answers))
		for j, answer := range submission.Answers {
			rows[answer.Order] = j
		}

		for _, question := range paper.Questions {
			j, ok := rows[question.Order]
			if !ok {
				return nil, fmt.Errorf("submission %d has no answer row for question %d", submission.ID, question.Order)
			}

			answer := &submission.Answers[j]
			if strings.TrimSpace(answer.Answer) == "" {
				answer.Score = models.NewScore(0, 0, 0, 0)
				answer.Feedback = BlankAnswerFeedback
				answer.Scored = true
				continue
			}
			jobs = append(jobs, scoringJob{submission: i, answer: j, order: question.Order})
		}
	}
	return jobs, nil
}

func (s *evaluationService) score(ctx context.Context, paper models.Paper, submissions []models.Submission, jobs []scoringJob) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	questions := make(map[int]models.Question, len(paper.Questions))
	for _, question := range paper.Questions {
		questions[question.Order] = question
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Concurrency)

	for _, job := range jobs {
		group.Go(func() error {
			submission := &submissions[job.submission]
			answer := &submission.Answers[job.answer]
			question := questions[job.order]

			result, err := s.evaluator.Evaluate(groupCtx, ai.EvaluationInput{
				Question:      question.Prompt,
				ModelAnswer:   question.ModelAnswer,
				StudentAnswer: answer.Answer,
			})
			if err != nil {
				return &EvaluationError{PaperID: paper.ID, StudentEmail: submission.StudentEmail, Order: job.order, Err: err}
			}

			answer.Score = models.NewScore(result.Scores.Clarity, result.Scores.Relevance, result.Scores.Accuracy, result.Scores.Completeness)
			answer.Feedback = s.sanitizer.Clean(result.Feedback)
			answer.Scored = true
			return nil
		})
	}

	return group.Wait()
}

func (s *evaluationService) Reset(ctx context.Context, principal Principal, paperID uint) (dto.EvaluationSummary, error) {
	paper, err := ownedPaper(ctx, s.papers, principal, paperID)
	if err != nil {
		return dto.EvaluationSummary{}, err
	}
	if !paper.Evaluated {
		return dto.EvaluationSummary{}, ErrPaperNotEvaluated
	}

	if err := s.submissions.ResetEvaluation(ctx, paperID); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return dto.EvaluationSummary{}, ErrPaperNotEvaluated
		}
		return dto.EvaluationSummary{}, err
	}
	paper.Evaluated = false
	paper.EvaluatedAt = nil

	counts, err := s.papers.SubmissionCounts(ctx, []uint{paperID})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to count submissions after reset")
	}

	s.logger.Info().Uint("paper_id", paperID).Msg("evaluation reset")
	s.lifecycle.apply(ctx, transition{
		paper:     paper,
		actor:     principal,
		action:    models.ActionPaperReset,
		eventType: dto.EventPaperReset,
		audience:  s.lifecycle.paperAudience(ctx, paper),
		audit:     true,
	})

	return dto.EvaluationSummary{
		PaperID:     paperID,
		Submissions: int(counts[paperID]),
		MaxScore:    paper.MaxScore(),
		Evaluated:   false,
	}, nil
}
