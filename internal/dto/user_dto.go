package dto

import (
	"time"

	"github.com/noah-isme/perception-api/internal/models"
)

// RegisterUserRequest records the role of the authenticated principal at sign-up.
// Email is taken from the verified token, never from the body.
type RegisterUserRequest struct {
	Email string `json:"-" validate:"required,email,max=255"`
	Role  string `json:"role" validate:"required,oneof=teacher student"`
}

// UserResponse describes a resolved identity.
type UserResponse struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse converts a user model.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}
