package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/perception-api/internal/models"
)

// ErrStaleState reports that a guarded write lost a race with another writer.
var ErrStaleState = errors.New("paper state changed concurrently")

// SubmissionMutator edits the current submission in place and reports whether anything changed.
// exists is false when the student has no stored submission yet.
type SubmissionMutator func(paper models.Paper, current *models.Submission, exists bool) (bool, error)

// SubmissionRepository defines data operations for submissions and their answers.
type SubmissionRepository interface {
	GetByPaperAndStudent(ctx context.Context, paperID uint, studentEmail string) (models.Submission, error)
	ListByPaper(ctx context.Context, paperID uint) ([]models.Submission, error)
	ListByStudent(ctx context.Context, studentEmail string) ([]models.Submission, error)
	Upsert(ctx context.Context, paperID uint, studentEmail string, mutate SubmissionMutator) (models.Submission, bool, error)
	SaveEvaluation(ctx context.Context, paperID uint, submissions []models.Submission, evaluatedAt time.Time) error
	ResetEvaluation(ctx context.Context, paperID uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func orderedAnswers(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *submissionRepository) GetByPaperAndStudent(ctx context.Context, paperID uint, studentEmail string) (models.Submission, error) {
	return loadSubmission(r.db.WithContext(ctx), paperID, studentEmail)
}

func loadSubmission(db *gorm.DB, paperID uint, studentEmail string) (models.Submission, error) {
	var submission models.Submission
	err := db.Preload("Answers", orderedAnswers).
		Where("paper_id = ? AND student_email = ?", paperID, studentEmail).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByPaper(ctx context.Context, paperID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Preload("Answers", orderedAnswers).
		Where("paper_id = ?", paperID).
		Order("student_email ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) ListByStudent(ctx context.Context, studentEmail string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).Where("student_email = ?", studentEmail).Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

// Upsert runs the read-modify-write of one (paper, student) submission in a single transaction.
// The paper row is locked so evaluation cannot commit between the state check and the write.
func (r *submissionRepository) Upsert(ctx context.Context, paperID uint, studentEmail string, mutate SubmissionMutator) (models.Submission, bool, error) {
	var (
		saved   models.Submission
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paper, err := loadPaper(tx.Clauses(clause.Locking{Strength: "UPDATE"}), paperID)
		if err != nil {
			return err
		}

		current, err := loadSubmission(tx, paperID, studentEmail)
		exists := true
		if errors.Is(err, gorm.ErrRecordNotFound) {
			exists = false
			current = models.Submission{PaperID: paperID, StudentEmail: studentEmail}
		} else if err != nil {
			return err
		}

		changed, err = mutate(paper, &current, exists)
		if err != nil {
			return err
		}
		saved = current
		if !changed {
			return nil
		}

		if !exists {
			if err := tx.Create(&current).Error; err != nil {
				return err
			}
			saved = current
			return nil
		}

		if err := tx.Omit("Answers").Save(&current).Error; err != nil {
			return err
		}
		for i := range current.Answers {
			current.Answers[i].SubmissionID = current.ID
			if err := tx.Save(&current.Answers[i]).Error; err != nil {
				return err
			}
		}
		saved = current
		return nil
	})
	if err != nil {
		return models.Submission{}, false, err
	}

	return saved, changed, nil
}

// SaveEvaluation commits scores for every submission and marks the paper evaluated.
// It fails with ErrStaleState when the paper was evaluated meanwhile or when any submission
// changed after the scores were computed.
func (r *submissionRepository) SaveEvaluation(ctx context.Context, paperID uint, submissions []models.Submission, evaluatedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Paper{}).
			Where("id = ? AND evaluated = ?", paperID, false).
			Updates(map[string]interface{}{"evaluated": true, "evaluated_at": evaluatedAt})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		var stored int64
		if err := tx.Model(&models.Submission{}).Where("paper_id = ?", paperID).Count(&stored).Error; err != nil {
			return err
		}
		if stored != int64(len(submissions)) {
			return ErrStaleState
		}

		for _, submission := range submissions {
			for _, answer := range submission.Answers {
				result := tx.Model(&models.SubmissionAnswer{}).
					Where("id = ? AND submission_id = ? AND answer = ?", answer.ID, submission.ID, answer.Answer).
					Updates(map[string]interface{}{
						"score_clarity":      answer.Score.Clarity,
						"score_relevance":    answer.Score.Relevance,
						"score_accuracy":     answer.Score.Accuracy,
						"score_completeness": answer.Score.Completeness,
						"score_average":      answer.Score.Average,
						"feedback":           answer.Feedback,
						"scored":             true,
					})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return ErrStaleState
				}
			}

			err := tx.Model(&models.Submission{}).
				Where("id = ? AND paper_id = ?", submission.ID, paperID).
				Updates(map[string]interface{}{"total_score": submission.TotalScore, "evaluated_at": evaluatedAt}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetEvaluation clears all scores of the paper and flips it back to unevaluated.
func (r *submissionRepository) ResetEvaluation(ctx context.Context, paperID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Paper{}).
			Where("id = ? AND evaluated = ?", paperID, true).
			Updates(map[string]interface{}{"evaluated": false, "evaluated_at": nil})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("paper_id = ?", paperID)
		err := tx.Model(&models.SubmissionAnswer{}).
			Where("submission_id IN (?)", submissionIDs).
			Updates(map[string]interface{}{
				"score_clarity":      0,
				"score_relevance":    0,
				"score_accuracy":     0,
				"score_completeness": 0,
				"score_average":      0,
				"feedback":           "",
				"scored":             false,
			}).Error
		if err != nil {
			return err
		}

		return tx.Model(&models.Submission{}).
			Where("paper_id = ?", paperID).
			Updates(map[string]interface{}{"total_score": 0, "evaluated_at": nil}).Error
	})
}
