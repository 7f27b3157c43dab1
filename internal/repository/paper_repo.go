package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/models"
)

// PaperRepository persists papers and their questions.
type PaperRepository interface {
	Create(ctx context.Context, paper *models.Paper) error
	GetByID(ctx context.Context, id uint) (models.Paper, error)
	ListByTeachers(ctx context.Context, teacherEmails []string) ([]models.Paper, error)
	SetExpired(ctx context.Context, id uint, expired bool) error
	Delete(ctx context.Context, id uint) error
	SubmissionCounts(ctx context.Context, paperIDs []uint) (map[uint]int64, error)
}

type paperRepository struct {
	db *gorm.DB
}

// NewPaperRepository constructs the paper repository.
func NewPaperRepository(db *gorm.DB) PaperRepository {
	return &paperRepository{db: db}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *paperRepository) Create(ctx context.Context, paper *models.Paper) error {
	return r.db.WithContext(ctx).Create(paper).Error
}

func (r *paperRepository) GetByID(ctx context.Context, id uint) (models.Paper, error) {
	return loadPaper(r.db.WithContext(ctx), id)
}

func loadPaper(db *gorm.DB, id uint) (models.Paper, error) {
	var paper models.Paper
	if err := db.Preload("Questions", orderedQuestions).First(&paper, id).Error; err != nil {
		return models.Paper{}, err
	}
	return paper, nil
}

func (r *paperRepository) ListByTeachers(ctx context.Context, teacherEmails []string) ([]models.Paper, error) {
	if len(teacherEmails) == 0 {
		return []models.Paper{}, nil
	}

	var papers []models.Paper
	err := r.db.WithContext(ctx).
		Preload("Questions", orderedQuestions).
		Where("teacher_email IN ?", teacherEmails).
		Order("created_at DESC").
		Order("id DESC").
		Find(&papers).Error
	if err != nil {
		return nil, err
	}
	return papers, nil
}

func (r *paperRepository) SetExpired(ctx context.Context, id uint, expired bool) error {
	result := r.db.WithContext(ctx).Model(&models.Paper{}).
		Where("id = ?", id).
		Update("expired", expired)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the paper together with its questions, submissions, answers and activity entries.
func (r *paperRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("paper_id = ?", id)
		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&models.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("paper_id = ?", id).Delete(&models.Submission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("paper_id = ?", id).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("paper_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Paper{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *paperRepository) SubmissionCounts(ctx context.Context, paperIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(paperIDs))
	if len(paperIDs) == 0 {
		return counts, nil
	}

	type row struct {
		PaperID uint
		Total   int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Select("paper_id, COUNT(*) AS total").
		Where("paper_id IN ?", paperIDs).
		Group("paper_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, item := range rows {
		counts[item.PaperID] = item.Total
	}
	return counts, nil
}
