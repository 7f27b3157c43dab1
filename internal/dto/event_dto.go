package dto

import "time"

// Event types delivered on the event stream.
const (
	EventIdentityRegistered  = "identity.registered"
	EventPaperCreated        = "paper.created"
	EventPaperExpired        = "paper.expired"
	EventPaperUnexpired      = "paper.unexpired"
	EventPaperEvaluated      = "paper.evaluated"
	EventPaperReset          = "paper.reset"
	EventPaperDeleted        = "paper.deleted"
	EventSubmissionSaved     = "submission.saved"
	EventSubmissionFinalized = "submission.finalized"
	EventRosterChanged       = "roster.changed"
)

// Event is a lifecycle notification addressed to one user.
type Event struct {
	Type       string                 `json:"type"`
	Topic      string                 `json:"topic"`
	PaperID    uint                   `json:"paper_id,omitempty"`
	ActorEmail string                 `json:"actor_email,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}
