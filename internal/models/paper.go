package models

import "time"

// Paper is a teacher-authored question set attempted by students.
type Paper struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	TeacherEmail string     `gorm:"size:255;not null;index" json:"teacher_email"`
	Expired      bool       `gorm:"not null;default:false" json:"expired"`
	Evaluated    bool       `gorm:"not null;default:false" json:"evaluated"`
	EvaluatedAt  *time.Time `json:"evaluated_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Questions    []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
}

// Question is a single prompt of a paper. Order is dense and 1-based within its paper.
type Question struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PaperID     uint   `gorm:"not null;uniqueIndex:idx_question_position" json:"paper_id"`
	Order       int    `gorm:"column:position;not null;uniqueIndex:idx_question_position" json:"order"`
	Prompt      string `gorm:"type:text;not null" json:"question"`
	ModelAnswer string `gorm:"type:text;not null" json:"answer"`
}

// IsOwnedBy reports whether the paper belongs to the given teacher.
func (p Paper) IsOwnedBy(email string) bool {
	return p.TeacherEmail == NormalizeEmail(email)
}

// HasOrder reports whether a question with the given order exists.
func (p Paper) HasOrder(order int) bool {
	for _, question := range p.Questions {
		if question.Order == order {
			return true
		}
	}
	return false
}

// MaxScore is the highest total a submission can reach.
func (p Paper) MaxScore() float64 {
	return float64(len(p.Questions)) * ScoreCeiling
}
