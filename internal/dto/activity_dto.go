package dto

import (
	"time"

	"github.com/noah-isme/perception-api/internal/models"
)

// ActivityResponse represents an activity log entry.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	PaperID    uint                   `json:"paper_id"`
	ActorEmail string                 `json:"actor_email"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewActivityResponse converts an activity model.
func NewActivityResponse(model models.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:         model.ID,
		PaperID:    model.PaperID,
		ActorEmail: model.ActorEmail,
		ActorRole:  model.ActorRole,
		Action:     model.Action,
		Metadata:   map[string]interface{}(model.Metadata),
		CreatedAt:  model.CreatedAt,
	}
}

// NewActivityResponseSlice converts activity models.
func NewActivityResponseSlice(items []models.ActivityLog) []ActivityResponse {
	responses := make([]ActivityResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewActivityResponse(item))
	}
	return responses
}
