package models

import (
	"time"

	"gorm.io/datatypes"
)

// Lifecycle actions. Deletion removes the paper's log, so paper.deleted is only counted in metrics.
const (
	ActionPaperCreated       = "paper.created"
	ActionPaperExpired       = "paper.expired"
	ActionPaperUnexpired     = "paper.unexpired"
	ActionPaperEvaluated     = "paper.evaluated"
	ActionPaperReset         = "paper.reset"
	ActionPaperDeleted       = "paper.deleted"
	ActionSubmissionSaved    = "submission.saved"
	ActionSubmissionFinalize = "submission.finalized"
)

// ActivityLog captures an auditable lifecycle transition on a paper.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	PaperID    uint              `gorm:"not null;index" json:"paper_id"`
	ActorEmail string            `gorm:"size:255;not null" json:"actor_email"`
	ActorRole  string            `gorm:"size:16;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null" json:"action"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&RosterEntry{},
		&Paper{},
		&Question{},
		&Submission{},
		&SubmissionAnswer{},
		&ActivityLog{},
	}
}
