package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/repository"
)

// IdentityService maps authenticated emails to roles and streams per-user events.
type IdentityService interface {
	Register(ctx context.Context, req dto.RegisterUserRequest) (dto.UserResponse, error)
	Resolve(ctx context.Context, email string) (Principal, error)
	Me(ctx context.Context, email string) (dto.UserResponse, error)
	Subscribe(email string) (<-chan dto.Event, func())
}

type identityService struct {
	repo      repository.UserRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	broker    EventBroker
	validator *validator.Validate
	logger    zerolog.Logger
	lookups   singleflight.Group
}

// NewIdentityService constructs the identity resolver. cache and broker may be nil.
func NewIdentityService(repo repository.UserRepository, cache *redis.Client, ttl time.Duration, broker EventBroker, validate *validator.Validate, logger zerolog.Logger) IdentityService {
	return &identityService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  ttl,
		broker:    broker,
		validator: validate,
		logger:    logger.With().Str("component", "identity_service").Logger(),
	}
}

func roleCacheKey(email string) string {
	return fmt.Sprintf("identity:role:%s", email)
}

func (s *identityService) Register(ctx context.Context, req dto.RegisterUserRequest) (dto.UserResponse, error) {
	req.Email = models.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}

	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return dto.UserResponse{}, ErrIdentityExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.UserResponse{}, err
	}

	user := models.User{Email: req.Email, Role: req.Role}
	if err := s.repo.Create(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}

	s.logger.Info().Str("email", user.Email).Str("role", user.Role).Msg("identity registered")
	if s.broker != nil {
		s.broker.Publish(ctx, dto.Event{
			Type:       dto.EventIdentityRegistered,
			Topic:      user.Email,
			ActorEmail: user.Email,
			Payload:    map[string]interface{}{"role": user.Role},
		})
	}

	return dto.NewUserResponse(user), nil
}

func (s *identityService) Resolve(ctx context.Context, email string) (Principal, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return Principal{}, ErrUnknownIdentity
	}

	if s.cache != nil {
		role, err := s.cache.Get(ctx, roleCacheKey(email)).Result()
		if err == nil && models.IsValidRole(role) {
			return Principal{Email: email, Role: role}, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read identity cache")
		}
	}

	// Concurrent requests of one user share a single store lookup, which must
	// outlive the request that happened to start it.
	lookupCtx := context.WithoutCancel(ctx)
	result, err, _ := s.lookups.Do(email, func() (interface{}, error) {
		user, err := s.repo.GetByEmail(lookupCtx, email)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(lookupCtx, roleCacheKey(email), user.Role, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store identity cache")
			}
		}
		return Principal{Email: user.Email, Role: user.Role}, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Principal{}, ErrUnknownIdentity
		}
		return Principal{}, err
	}
	return result.(Principal), nil
}

func (s *identityService) Me(ctx context.Context, email string) (dto.UserResponse, error) {
	user, err := s.repo.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUnknownIdentity
		}
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

// Subscribe opens the caller's event stream. The returned cancel func must always be called.
func (s *identityService) Subscribe(email string) (<-chan dto.Event, func()) {
	if s.broker == nil {
		ch := make(chan dto.Event)
		return ch, func() {}
	}
	return s.broker.Subscribe(models.NormalizeEmail(email))
}
