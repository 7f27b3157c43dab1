package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/perception-api/internal/config"
	"github.com/noah-isme/perception-api/internal/database"
	"github.com/noah-isme/perception-api/internal/handler"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/repository"
	"github.com/noah-isme/perception-api/internal/router"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/pkg/ai"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func serve(parent context.Context, cfg config.Config, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; caches and cross-node events disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		return err
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	var evaluator ai.Evaluator
	if cfg.AIAPIKey != "" {
		openAIEvaluator, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{
			BaseURL:     cfg.AIBaseURL,
			APIKey:      cfg.AIAPIKey,
			Model:       cfg.AIModel,
			MaxTokens:   cfg.AIMaxTokens,
			Temperature: cfg.AITemperature,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		evaluator = openAIEvaluator
	} else {
		logger.Warn().Msg("evaluation engine api key missing; evaluate requests will fail")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	paperRepo := repository.NewPaperRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	broker := service.NewEventBroker(redisClient, cfg.EventsChannel, natsConn, logger)
	broker.Start(ctx)

	paperCache := service.NewPaperListCache(redisClient, cfg.PaperCacheTTL, logger)
	activityService := service.NewActivityService(activityRepo, paperRepo, logger)
	lifecycle := service.NewLifecycle(activityService, rosterRepo, broker, paperCache, logger)

	identityService := service.NewIdentityService(userRepo, redisClient, cfg.IdentityCacheTTL, broker, validate, logger)
	rosterService := service.NewRosterService(rosterRepo, userRepo, lifecycle, validate, logger)
	paperService := service.NewPaperService(paperRepo, submissionRepo, rosterRepo, paperCache, lifecycle, validate, logger)
	submissionService := service.NewSubmissionService(paperRepo, submissionRepo, rosterRepo, lifecycle, validate, logger)
	evaluationService := service.NewEvaluationService(paperRepo, submissionRepo, evaluator, lifecycle, service.EvaluationConfig{
		Concurrency: cfg.EvaluationConcurrency,
		Timeout:     cfg.EvaluationTimeout,
	}, logger)
	exportService := service.NewExportService(paperRepo, submissionRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  30 * time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		IdentityHandler:    handler.NewIdentityHandler(identityService, logger),
		RosterHandler:      handler.NewRosterHandler(rosterService, logger),
		PaperHandler:       handler.NewPaperHandler(paperService, logger),
		SubmissionHandler:  handler.NewSubmissionHandler(submissionService, logger),
		EvaluationHandler:  handler.NewEvaluationHandler(evaluationService, middleware.RateLimit("evaluate", cfg.EvaluateRateMax, cfg.EvaluateRateWindow), logger),
		ActivityHandler:    handler.NewActivityHandler(activityService, logger),
		ExportHandler:      handler.NewExportHandler(exportService, logger),
		EventHandler:       handler.NewEventHandler(identityService, logger),
		HealthProbes:       healthProbes(db, redisClient),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		IdentityMiddleware: middleware.ResolveIdentity(identityService, logger),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("http server listening")
		errCh <- app.Listen(cfg.HTTPAddress())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return shutdown(app, logger)
}

func shutdown(app *fiber.App, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
