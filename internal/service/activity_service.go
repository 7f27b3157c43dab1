package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
)

const activityListLimit = 200

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	PaperID  uint
	Actor    Principal
	Action   string
	Metadata map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

// ActivityService exposes methods to query and persist the paper audit trail.
type ActivityService interface {
	ActivityRecorder
	ListForPaper(ctx context.Context, principal Principal, paperID uint) ([]dto.ActivityResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	papers repository.PaperRepository
	logger zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, papers repository.PaperRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		papers: papers,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) error {
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("action is required")
	}
	if entry.PaperID == 0 {
		return fmt.Errorf("paper id is required")
	}

	model := models.ActivityLog{
		PaperID:    entry.PaperID,
		ActorEmail: entry.Actor.Email,
		ActorRole:  normalizeRole(entry.Actor.Role),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		Metadata:   toJSONMap(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Uint("paper_id", entry.PaperID).Msg("failed to persist activity log")
		return err
	}
	return nil
}

func (s *activityService) ListForPaper(ctx context.Context, principal Principal, paperID uint) ([]dto.ActivityResponse, error) {
	if err := requireRole(principal, models.RoleTeacher); err != nil {
		return nil, err
	}

	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaperNotFound
		}
		return nil, err
	}
	if !paper.IsOwnedBy(principal.Email) {
		return nil, ErrNotPaperOwner
	}

	entries, err := s.repo.ListByPaper(ctx, paperID, activityListLimit)
	if err != nil {
		return nil, err
	}
	return dto.NewActivityResponseSlice(entries), nil
}

func toJSONMap(metadata map[string]interface{}) datatypes.JSONMap {
	result := datatypes.JSONMap{}
	for key, value := range metadata {
		result[key] = value
	}
	return result
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
