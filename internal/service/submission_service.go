package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
)

// SubmissionService records student answers and serves the student's own result view.
type SubmissionService interface {
	Upsert(ctx context.Context, principal Principal, paperID uint, req dto.SubmissionUpsertRequest) (dto.SubmissionSavedResponse, error)
	ResultView(ctx context.Context, principal Principal, paperID uint) (dto.StudentResultView, error)
}

type submissionService struct {
	papers      repository.PaperRepository
	submissions repository.SubmissionRepository
	roster      repository.RosterRepository
	lifecycle   *Lifecycle
	validator   *validator.Validate
	sanitizer   plainText
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs the submission recorder.
func NewSubmissionService(papers repository.PaperRepository, submissions repository.SubmissionRepository, roster repository.RosterRepository, lifecycle *Lifecycle, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		papers:      papers,
		submissions: submissions,
		roster:      roster,
		lifecycle:   lifecycle,
		validator:   validate,
		sanitizer:   newPlainText(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/perception-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) Upsert(ctx context.Context, principal Principal, paperID uint, req dto.SubmissionUpsertRequest) (dto.SubmissionSavedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionSavedResponse{}, err
	}

	desired := make(map[int]string, len(req.Answers))
	for _, answer := range req.Answers {
		if _, seen := desired[answer.Order]; seen {
			return dto.SubmissionSavedResponse{}, ErrDuplicateQuestion
		}
		desired[answer.Order] = s.sanitizer.Clean(answer.Answer)
	}

	paper, err := rosteredPaper(ctx, s.papers, s.roster, principal, paperID)
	if err != nil {
		return dto.SubmissionSavedResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "submissions.upsert", trace.WithAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.Bool("submission.final", req.Final),
	))
	defer span.End()

	var created, finalizedNow bool
	saved, changed, err := s.submissions.Upsert(spanCtx, paper.ID, principal.Email, func(current models.Paper, submission *models.Submission, exists bool) (bool, error) {
		if current.Evaluated {
			return false, ErrPaperEvaluated
		}
		if current.Expired && !exists {
			return false, ErrPaperExpired
		}
		for order := range desired {
			if !current.HasOrder(order) {
				return false, ErrUnknownQuestion
			}
		}

		answersChanged := applyAnswers(current, submission, desired)
		if submission.Finalized {
			if answersChanged {
				return false, ErrSubmissionFinalized
			}
			return false, nil
		}

		created = !exists
		if req.Final {
			now := s.now().UTC()
			submission.Finalized = true
			submission.SubmittedAt = &now
			finalizedNow = true
		}
		return created || answersChanged || finalizedNow, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionSavedResponse{}, ErrPaperNotFound
		}
		return dto.SubmissionSavedResponse{}, err
	}

	if changed {
		s.logger.Debug().Uint("paper_id", paper.ID).Str("student", principal.Email).Bool("final", saved.Finalized).Msg("submission saved")
		action, eventType := models.ActionSubmissionSaved, dto.EventSubmissionSaved
		if finalizedNow {
			action, eventType = models.ActionSubmissionFinalize, dto.EventSubmissionFinalized
		}
		s.lifecycle.apply(spanCtx, transition{
			paper:     paper,
			actor:     principal,
			action:    action,
			eventType: eventType,
			metadata:  map[string]interface{}{"student_email": principal.Email},
			audience:  []string{paper.TeacherEmail, principal.Email},
			audit:     created || finalizedNow,
		})
	}

	return dto.SubmissionSavedResponse{
		PaperID:   paper.ID,
		Finalized: saved.Finalized,
		Changed:   changed,
	}, nil
}

// applyAnswers writes the desired answers onto the submission, keeping one row per question.
// Questions missing from the payload are stored empty. It reports whether any text changed.
func applyAnswers(paper models.Paper, submission *models.Submission, desired map[int]string) bool {
	rows := make(map[int]int, len(submission.Answers))
	for i, answer := range submission.Answers {
		rows[answer.Order] = i
	}

	changed := false
	for _, question := range paper.Questions {
		text := desired[question.Order]
		index, ok := rows[question.Order]
		if !ok {
			submission.Answers = append(submission.Answers, models.SubmissionAnswer{Order: question.Order, Answer: text})
			changed = true
			continue
		}
		if submission.Answers[index].Answer != text {
			submission.Answers[index].Answer = text
			changed = true
		}
	}
	return changed
}

func (s *submissionService) ResultView(ctx context.Context, principal Principal, paperID uint) (dto.StudentResultView, error) {
	if err := requireRole(principal, models.RoleStudent); err != nil {
		return dto.StudentResultView{}, err
	}

	paper, err := loadPaper(ctx, s.papers, paperID)
	if err != nil {
		return dto.StudentResultView{}, err
	}

	submission, err := s.submissions.GetByPaperAndStudent(ctx, paperID, principal.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentResultView{}, ErrSubmissionNotFound
		}
		return dto.StudentResultView{}, err
	}

	return dto.NewStudentResultView(paper, submission), nil
}
