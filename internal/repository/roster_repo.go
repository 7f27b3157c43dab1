package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/models"
)

// RosterRepository manages teacher and student associations.
type RosterRepository interface {
	Exists(ctx context.Context, teacherEmail, studentEmail string) (bool, error)
	Create(ctx context.Context, entry *models.RosterEntry) error
	Delete(ctx context.Context, teacherEmail, studentEmail string) error
	ListStudents(ctx context.Context, teacherEmail string) ([]string, error)
	ListTeachers(ctx context.Context, studentEmail string) ([]string, error)
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository constructs the roster repository.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) Exists(ctx context.Context, teacherEmail, studentEmail string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RosterEntry{}).
		Where("teacher_email = ? AND student_email = ?", teacherEmail, studentEmail).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *rosterRepository) Create(ctx context.Context, entry *models.RosterEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *rosterRepository) Delete(ctx context.Context, teacherEmail, studentEmail string) error {
	result := r.db.WithContext(ctx).
		Where("teacher_email = ? AND student_email = ?", teacherEmail, studentEmail).
		Delete(&models.RosterEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *rosterRepository) ListStudents(ctx context.Context, teacherEmail string) ([]string, error) {
	var emails []string
	err := r.db.WithContext(ctx).Model(&models.RosterEntry{}).
		Where("teacher_email = ?", teacherEmail).
		Order("student_email ASC").
		Pluck("student_email", &emails).Error
	return emails, err
}

func (r *rosterRepository) ListTeachers(ctx context.Context, studentEmail string) ([]string, error) {
	var emails []string
	err := r.db.WithContext(ctx).Model(&models.RosterEntry{}).
		Where("student_email = ?", studentEmail).
		Order("teacher_email ASC").
		Pluck("teacher_email", &emails).Error
	return emails, err
}
