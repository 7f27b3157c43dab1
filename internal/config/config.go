package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName               string
	AppEnv                string
	AppPort               string
	LogLevel              string
	DatabaseURL           string
	RedisURL              string
	NATSURL               string
	EventsChannel         string
	JWTSecret             string
	IdentityCacheTTL      time.Duration
	PaperCacheTTL         time.Duration
	AIBaseURL             string
	AIAPIKey              string
	AIModel               string
	AIMaxTokens           int
	AITemperature         float32
	EvaluationConcurrency int
	EvaluationTimeout     time.Duration
	EvaluateRateMax       int
	EvaluateRateWindow    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PERCEPTION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Perception API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("events.channel", "perception")
	v.SetDefault("identity.cache_ttl", "1h")
	v.SetDefault("papers.cache_ttl", "2m")
	v.SetDefault("ai.model", "llama-3.3-70b-versatile")
	v.SetDefault("ai.max_tokens", 256)
	v.SetDefault("ai.temperature", 0.4)
	v.SetDefault("evaluation.concurrency", 4)
	v.SetDefault("evaluation.timeout", "2m")
	v.SetDefault("ratelimit.evaluate_max", 5)
	v.SetDefault("ratelimit.evaluate_window", "1m")

	identityTTL, err := parseDuration(v, "identity.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	paperTTL, err := parseDuration(v, "papers.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	evaluationTimeout, err := parseDuration(v, "evaluation.timeout")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "ratelimit.evaluate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		LogLevel:              strings.ToLower(v.GetString("log.level")),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		EventsChannel:         v.GetString("events.channel"),
		JWTSecret:             v.GetString("jwt.secret"),
		IdentityCacheTTL:      identityTTL,
		PaperCacheTTL:         paperTTL,
		AIBaseURL:             v.GetString("ai.base_url"),
		AIAPIKey:              v.GetString("ai.api_key"),
		AIModel:               v.GetString("ai.model"),
		AIMaxTokens:           v.GetInt("ai.max_tokens"),
		AITemperature:         float32(v.GetFloat64("ai.temperature")),
		EvaluationConcurrency: v.GetInt("evaluation.concurrency"),
		EvaluationTimeout:     evaluationTimeout,
		EvaluateRateMax:       v.GetInt("ratelimit.evaluate_max"),
		EvaluateRateWindow:    rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.EvaluationConcurrency <= 0 {
		cfg.EvaluationConcurrency = 4
	}

	if cfg.AIMaxTokens <= 0 {
		cfg.AIMaxTokens = 256
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
