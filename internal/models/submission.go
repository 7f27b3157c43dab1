package models

import (
	"math"
	"time"
)

// ScoreCeiling is the upper bound of every rubric criterion and of a question average.
const ScoreCeiling = 10.0

// Score holds the rubric breakdown for one answer.
type Score struct {
	Clarity      float64 `gorm:"not null;default:0" json:"clarity"`
	Relevance    float64 `gorm:"not null;default:0" json:"relevance"`
	Accuracy     float64 `gorm:"not null;default:0" json:"accuracy"`
	Completeness float64 `gorm:"not null;default:0" json:"completeness"`
	Average      float64 `gorm:"not null;default:0" json:"average"`
}

// NewScore clamps each criterion into [0, ScoreCeiling] and derives the average.
func NewScore(clarity, relevance, accuracy, completeness float64) Score {
	score := Score{
		Clarity:      clampScore(clarity),
		Relevance:    clampScore(relevance),
		Accuracy:     clampScore(accuracy),
		Completeness: clampScore(completeness),
	}
	score.Average = (score.Clarity + score.Relevance + score.Accuracy + score.Completeness) / 4
	return score
}

func clampScore(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > ScoreCeiling {
		return ScoreCeiling
	}
	return value
}

// Submission is the single upserted record of one student's answers for a paper.
type Submission struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	PaperID      uint               `gorm:"not null;uniqueIndex:idx_submission_owner" json:"paper_id"`
	StudentEmail string             `gorm:"size:255;not null;uniqueIndex:idx_submission_owner;index" json:"student_email"`
	TotalScore   float64            `gorm:"not null;default:0" json:"total_score"`
	Finalized    bool               `gorm:"not null;default:false" json:"finalized"`
	SubmittedAt  *time.Time         `json:"submitted_at"`
	EvaluatedAt  *time.Time         `json:"evaluated_at"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Answers      []SubmissionAnswer `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
}

// SubmissionAnswer stores the answer to one question and, once evaluated, its score.
type SubmissionAnswer struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubmissionID uint   `gorm:"not null;uniqueIndex:idx_answer_position" json:"submission_id"`
	Order        int    `gorm:"column:position;not null;uniqueIndex:idx_answer_position" json:"order"`
	Answer       string `gorm:"type:text" json:"answer"`
	Score        Score  `gorm:"embedded;embeddedPrefix:score_" json:"scores"`
	Feedback     string `gorm:"type:text" json:"feedback"`
	Scored       bool   `gorm:"not null;default:false" json:"scored"`
}

// RecomputeTotal sets TotalScore to the sum of the per-answer averages.
func (s *Submission) RecomputeTotal() float64 {
	total := 0.0
	for _, answer := range s.Answers {
		if answer.Scored {
			total += answer.Score.Average
		}
	}
	s.TotalScore = total
	return total
}

// IsScoredFor reports whether every question order of the paper has a scored answer.
func (s Submission) IsScoredFor(paper Paper) bool {
	scored := make(map[int]bool, len(s.Answers))
	for _, answer := range s.Answers {
		if answer.Scored {
			scored[answer.Order] = true
		}
	}
	for _, question := range paper.Questions {
		if !scored[question.Order] {
			return false
		}
	}
	return true
}

// AnswerFor returns the answer row for an order.
func (s Submission) AnswerFor(order int) (SubmissionAnswer, bool) {
	for _, answer := range s.Answers {
		if answer.Order == order {
			return answer, true
		}
	}
	return SubmissionAnswer{}, false
}
