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

// RosterService manages which students attempt a teacher's papers.
type RosterService interface {
	AddStudent(ctx context.Context, principal Principal, req dto.RosterAddRequest) (dto.RosterResponse, error)
	RemoveStudent(ctx context.Context, principal Principal, studentEmail string) error
	ListStudents(ctx context.Context, principal Principal) (dto.RosterResponse, error)
	ListTeachers(ctx context.Context, principal Principal) (dto.RosterResponse, error)
}

type rosterService struct {
	repo      repository.RosterRepository
	users     repository.UserRepository
	lifecycle *Lifecycle
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRosterService constructs the roster manager.
func NewRosterService(repo repository.RosterRepository, users repository.UserRepository, lifecycle *Lifecycle, validate *validator.Validate, logger zerolog.Logger) RosterService {
	return &rosterService{
		repo:      repo,
		users:     users,
		lifecycle: lifecycle,
		validator: validate,
		logger:    logger.With().Str("component", "roster_service").Logger(),
	}
}

func (s *rosterService) AddStudent(ctx context.Context, principal Principal, req dto.RosterAddRequest) (dto.RosterResponse, error) {
	if err := requireRole(principal, models.RoleTeacher); err != nil {
		return dto.RosterResponse{}, err
	}

	req.StudentEmail = models.NormalizeEmail(req.StudentEmail)
	if err := s.validator.Struct(req); err != nil {
		return dto.RosterResponse{}, err
	}

	exists, err := s.repo.Exists(ctx, principal.Email, req.StudentEmail)
	if err != nil {
		return dto.RosterResponse{}, err
	}
	if exists {
		return dto.RosterResponse{}, ErrAlreadyRostered
	}

	student, err := s.users.GetByEmail(ctx, req.StudentEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RosterResponse{}, ErrStudentNotFound
		}
		return dto.RosterResponse{}, err
	}
	if student.Role != models.RoleStudent {
		return dto.RosterResponse{}, ErrStudentNotFound
	}

	entry := models.RosterEntry{TeacherEmail: principal.Email, StudentEmail: req.StudentEmail}
	if err := s.repo.Create(ctx, &entry); err != nil {
		return dto.RosterResponse{}, err
	}

	s.logger.Info().Str("teacher", principal.Email).Str("student", req.StudentEmail).Msg("student added to roster")
	s.lifecycle.rosterChanged(ctx, principal, principal.Email, req.StudentEmail, true)

	return s.ListStudents(ctx, principal)
}

func (s *rosterService) RemoveStudent(ctx context.Context, principal Principal, studentEmail string) error {
	if err := requireRole(principal, models.RoleTeacher); err != nil {
		return err
	}

	studentEmail = models.NormalizeEmail(studentEmail)
	if err := s.repo.Delete(ctx, principal.Email, studentEmail); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRosterEntryNotFound
		}
		return err
	}

	s.logger.Info().Str("teacher", principal.Email).Str("student", studentEmail).Msg("student removed from roster")
	s.lifecycle.rosterChanged(ctx, principal, principal.Email, studentEmail, false)
	return nil
}

func (s *rosterService) ListStudents(ctx context.Context, principal Principal) (dto.RosterResponse, error) {
	if err := requireRole(principal, models.RoleTeacher); err != nil {
		return dto.RosterResponse{}, err
	}

	emails, err := s.repo.ListStudents(ctx, principal.Email)
	if err != nil {
		return dto.RosterResponse{}, err
	}
	return dto.RosterResponse{Emails: nonNilStrings(emails)}, nil
}

func (s *rosterService) ListTeachers(ctx context.Context, principal Principal) (dto.RosterResponse, error) {
	if err := requireRole(principal, models.RoleStudent); err != nil {
		return dto.RosterResponse{}, err
	}

	emails, err := s.repo.ListTeachers(ctx, principal.Email)
	if err != nil {
		return dto.RosterResponse{}, err
	}
	return dto.RosterResponse{Emails: nonNilStrings(emails)}, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
