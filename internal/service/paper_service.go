package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
)

// PaperService drives the paper lifecycle and the views built on it.
type PaperService interface {
	Create(ctx context.Context, principal Principal, req dto.PaperCreateRequest) (dto.TeacherPaperView, error)
	List(ctx context.Context, principal Principal) ([]dto.PaperSummary, error)
	TeacherView(ctx context.Context, principal Principal, paperID uint) (dto.TeacherPaperView, error)
	AttemptView(ctx context.Context, principal Principal, paperID uint) (dto.AttemptView, error)
	Expire(ctx context.Context, principal Principal, paperID uint) (dto.PaperSummary, error)
	Unexpire(ctx context.Context, principal Principal, paperID uint) (dto.PaperSummary, error)
	Delete(ctx context.Context, principal Principal, paperID uint) error
}

type paperService struct {
	papers      repository.PaperRepository
	submissions repository.SubmissionRepository
	roster      repository.RosterRepository
	cache       *PaperListCache
	lifecycle   *Lifecycle
	validator   *validator.Validate
	sanitizer   plainText
	logger      zerolog.Logger
}

// NewPaperService constructs the paper service.
func NewPaperService(papers repository.PaperRepository, submissions repository.SubmissionRepository, roster repository.RosterRepository, cache *PaperListCache, lifecycle *Lifecycle, validate *validator.Validate, logger zerolog.Logger) PaperService {
	return &paperService{
		papers:      papers,
		submissions: submissions,
		roster:      roster,
		cache:       cache,
		lifecycle:   lifecycle,
		validator:   validate,
		sanitizer:   newPlainText(),
		logger:      logger.With().Str("component", "paper_service").Logger(),
	}
}

func (s *paperService) clean(value string) string {
	return s.sanitizer.Clean(value)
}

func (s *paperService) Create(ctx context.Context, principal Principal, req dto.PaperCreateRequest) (dto.TeacherPaperView, error) {
	if err := requireRole(principal, models.RoleTeacher); err != nil {
		return dto.TeacherPaperView{}, err
	}

	cleaned := dto.PaperCreateRequest{
		Title:     s.clean(req.Title),
		Questions: make([]dto.QuestionRequest, 0, len(req.Questions)),
	}
	for _, question := range req.Questions {
		cleaned.Questions = append(cleaned.Questions, dto.QuestionRequest{
			Question: s.clean(question.Question),
			Answer:   s.clean(question.Answer),
		})
	}
	if err := s.validator.Struct(cleaned); err != nil {
		return dto.TeacherPaperView{}, err
	}

	paper := models.Paper{
		Title:        cleaned.Title,
		TeacherEmail: models.NormalizeEmail(principal.Email),
		Questions:    make([]models.Question, 0, len(cleaned.Questions)),
	}
	for i, question := range cleaned.Questions {
		paper.Questions = append(paper.Questions, models.Question{
			Order:       i + 1,
			Prompt:      question.Question,
			ModelAnswer: question.Answer,
		})
	}

	if err := s.papers.Create(ctx, &paper); err != nil {
		s.logger.Error().Err(err).Msg("failed to create paper")
		return dto.TeacherPaperView{}, err
	}

	s.logger.Info().Uint("paper_id", paper.ID).Int("questions", len(paper.Questions)).Msg("paper created")
	s.lifecycle.apply(ctx, transition{
		paper:     paper,
		actor:     principal,
		action:    models.ActionPaperCreated,
		eventType: dto.EventPaperCreated,
		metadata:  map[string]interface{}{"title": paper.Title, "questions": len(paper.Questions)},
		audience:  s.lifecycle.paperAudience(ctx, paper),
		audit:     true,
	})

	return dto.NewTeacherPaperView(paper, nil), nil
}

func (s *paperService) List(ctx context.Context, principal Principal) ([]dto.PaperSummary, error) {
	switch {
	case principal.IsTeacher():
		return s.listForTeacher(ctx, principal)
	case principal.IsStudent():
		return s.listForStudent(ctx, principal)
	default:
		return nil, ErrRoleNotPermitted
	}
}

func (s *paperService) listForTeacher(ctx context.Context, principal Principal) ([]dto.PaperSummary, error) {
	papers, err := s.papers.ListByTeachers(ctx, []string{principal.Email})
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(papers))
	for _, paper := range papers {
		ids = append(ids, paper.ID)
	}
	counts, err := s.papers.SubmissionCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.PaperSummary, 0, len(papers))
	for _, paper := range papers {
		summary := paperSummary(paper)
		count := counts[paper.ID]
		summary.SubmissionCount = &count
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *paperService) listForStudent(ctx context.Context, principal Principal) ([]dto.PaperSummary, error) {
	if cached, ok := s.cache.Get(ctx, principal.Email); ok {
		return cached, nil
	}

	teachers, err := s.roster.ListTeachers(ctx, principal.Email)
	if err != nil {
		return nil, err
	}
	papers, err := s.papers.ListByTeachers(ctx, teachers)
	if err != nil {
		return nil, err
	}
	own, err := s.submissions.ListByStudent(ctx, principal.Email)
	if err != nil {
		return nil, err
	}

	byPaper := make(map[uint]models.Submission, len(own))
	for _, submission := range own {
		byPaper[submission.PaperID] = submission
	}

	summaries := make([]dto.PaperSummary, 0, len(papers))
	for _, paper := range papers {
		summary := paperSummary(paper)
		submission, attempted := byPaper[paper.ID]
		finalized := attempted && submission.Finalized
		summary.Attempted = &attempted
		summary.Finalized = &finalized
		summaries = append(summaries, summary)
	}

	s.cache.Set(ctx, principal.Email, summaries)
	return summaries, nil
}

func (s *paperService) TeacherView(ctx context.Context, principal Principal, paperID uint) (dto.TeacherPaperView, error) {
	paper, err := s.ownedPaper(ctx, principal, paperID)
	if err != nil {
		return dto.TeacherPaperView{}, err
	}

	submissions, err := s.submissions.ListByPaper(ctx, paperID)
	if err != nil {
		return dto.TeacherPaperView{}, err
	}
	return dto.NewTeacherPaperView(paper, submissions), nil
}

func (s *paperService) AttemptView(ctx context.Context, principal Principal, paperID uint) (dto.AttemptView, error) {
	paper, err := rosteredPaper(ctx, s.papers, s.roster, principal, paperID)
	if err != nil {
		return dto.AttemptView{}, err
	}

	submission, err := s.submissions.GetByPaperAndStudent(ctx, paperID, principal.Email)
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AttemptView{}, err
	}
	if paper.Expired && !exists {
		return dto.AttemptView{}, ErrPaperExpired
	}

	view := dto.AttemptView{
		ID:        paper.ID,
		Title:     paper.Title,
		Expired:   paper.Expired,
		Finalized: submission.Finalized,
		Questions: make([]dto.AttemptQuestion, 0, len(paper.Questions)),
	}
	for _, question := range paper.Questions {
		item := dto.AttemptQuestion{Order: question.Order, Question: question.Prompt}
		if answer, ok := submission.AnswerFor(question.Order); ok {
			item.Answer = answer.Answer
		}
		view.Questions = append(view.Questions, item)
	}
	return view, nil
}

func (s *paperService) Expire(ctx context.Context, principal Principal, paperID uint) (dto.PaperSummary, error) {
	return s.setExpired(ctx, principal, paperID, true)
}

func (s *paperService) Unexpire(ctx context.Context, principal Principal, paperID uint) (dto.PaperSummary, error) {
	return s.setExpired(ctx, principal, paperID, false)
}

func (s *paperService) setExpired(ctx context.Context, principal Principal, paperID uint, expired bool) (dto.PaperSummary, error) {
	paper, err := s.ownedPaper(ctx, principal, paperID)
	if err != nil {
		return dto.PaperSummary{}, err
	}
	if paper.Expired == expired {
		return paperSummary(paper), nil
	}

	if err := s.papers.SetExpired(ctx, paperID, expired); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PaperSummary{}, ErrPaperNotFound
		}
		return dto.PaperSummary{}, err
	}
	paper.Expired = expired

	action, eventType := models.ActionPaperExpired, dto.EventPaperExpired
	if !expired {
		action, eventType = models.ActionPaperUnexpired, dto.EventPaperUnexpired
	}
	s.lifecycle.apply(ctx, transition{
		paper:     paper,
		actor:     principal,
		action:    action,
		eventType: eventType,
		audience:  s.lifecycle.paperAudience(ctx, paper),
		audit:     true,
	})

	return paperSummary(paper), nil
}

func (s *paperService) Delete(ctx context.Context, principal Principal, paperID uint) error {
	paper, err := s.ownedPaper(ctx, principal, paperID)
	if err != nil {
		return err
	}

	audience := s.lifecycle.paperAudience(ctx, paper)
	if err := s.papers.Delete(ctx, paperID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaperNotFound
		}
		return err
	}

	s.logger.Info().Uint("paper_id", paperID).Msg("paper deleted")
	s.lifecycle.apply(ctx, transition{
		paper:     paper,
		actor:     principal,
		action:    models.ActionPaperDeleted,
		eventType: dto.EventPaperDeleted,
		audience:  audience,
	})
	return nil
}

func (s *paperService) ownedPaper(ctx context.Context, principal Principal, paperID uint) (models.Paper, error) {
	return ownedPaper(ctx, s.papers, principal, paperID)
}

// ownedPaper loads a paper the teacher principal owns.
func ownedPaper(ctx context.Context, papers repository.PaperRepository, principal Principal, paperID uint) (models.Paper, error) {
	if err := requireRole(principal, models.RoleTeacher); err != nil {
		return models.Paper{}, err
	}

	paper, err := loadPaper(ctx, papers, paperID)
	if err != nil {
		return models.Paper{}, err
	}
	if !paper.IsOwnedBy(principal.Email) {
		return models.Paper{}, ErrNotPaperOwner
	}
	return paper, nil
}

// rosteredPaper loads a paper the student principal may attempt.
func rosteredPaper(ctx context.Context, papers repository.PaperRepository, roster repository.RosterRepository, principal Principal, paperID uint) (models.Paper, error) {
	if err := requireRole(principal, models.RoleStudent); err != nil {
		return models.Paper{}, err
	}

	paper, err := loadPaper(ctx, papers, paperID)
	if err != nil {
		return models.Paper{}, err
	}

	rostered, err := roster.Exists(ctx, paper.TeacherEmail, principal.Email)
	if err != nil {
		return models.Paper{}, err
	}
	if !rostered {
		return models.Paper{}, ErrNotRostered
	}
	return paper, nil
}

func loadPaper(ctx context.Context, papers repository.PaperRepository, paperID uint) (models.Paper, error) {
	paper, err := papers.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Paper{}, ErrPaperNotFound
		}
		return models.Paper{}, err
	}
	return paper, nil
}

func paperSummary(paper models.Paper) dto.PaperSummary {
	return dto.PaperSummary{
		ID:            paper.ID,
		Title:         paper.Title,
		TeacherEmail:  paper.TeacherEmail,
		Expired:       paper.Expired,
		Evaluated:     paper.Evaluated,
		QuestionCount: len(paper.Questions),
		CreatedAt:     paper.CreatedAt,
	}
}
