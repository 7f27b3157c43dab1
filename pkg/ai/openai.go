package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL points at Groq's OpenAI compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "llama-3.3-70b-versatile"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "perception",
		Subsystem: "ai",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of answer evaluation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perception",
		Subsystem: "ai",
		Name:      "evaluation_failures_total",
		Help:      "Number of answer evaluation failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the chat completion evaluator.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIEvaluator implements Evaluator against any OpenAI compatible chat completion API.
type OpenAIEvaluator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEvaluator builds a new evaluator using the provided configuration.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("evaluation engine api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	tracer := otel.Tracer("github.com/noah-isme/perception-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := openai.NewClientWithConfig(config)

	return &OpenAIEvaluator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "ai_evaluator").Logger(),
	}, nil
}

// Evaluate sends the evaluation request and parses the rubric response.
func (e *OpenAIEvaluator) Evaluate(parent context.Context, input EvaluationInput) (EvaluationResult, error) {
	ctx, span := e.tracer.Start(parent, "openai.evaluate", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: evaluatorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	aiDuration.WithLabelValues(e.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		return EvaluationResult{}, e.fail(span, fmt.Errorf("openai evaluate: %w", err))
	}

	if len(resp.Choices) == 0 {
		return EvaluationResult{}, e.fail(span, fmt.Errorf("no choices returned from evaluation engine"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseEvaluationResponse(content)
	if err != nil {
		return EvaluationResult{}, e.fail(span, err)
	}

	e.logger.Debug().Dur("duration", duration).Int("tokens", resp.Usage.TotalTokens).Msg("answer evaluated")
	result.Raw = map[string]interface{}{
		"usage": resp.Usage,
	}

	return result, nil
}

func (e *OpenAIEvaluator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(e.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func evaluatorSystemPrompt() string {
	return "You are an examiner grading a student's answer against the teacher's model answer. " +
		"Score clarity, relevance, accuracy and completeness from 0 to 10 and report their average. " +
		"If the student's answer is empty, every score is 0. " +
		"Write feedback addressed to the student in the second person, pointing out mistakes and gaps without revealing the model answer. " +
		`Respond with a JSON object of the form {"scores":{"clarity":0,"relevance":0,"accuracy":0,"completeness":0,"average":0},"feedback":""}.`
}

func buildUserPrompt(input EvaluationInput) string {
	builder := strings.Builder{}
	builder.WriteString("Question: ")
	builder.WriteString(input.Question)
	builder.WriteString("\nTeacher's Answer: ")
	builder.WriteString(input.ModelAnswer)
	builder.WriteString("\nStudent's Answer: ")
	builder.WriteString(input.StudentAnswer)
	return builder.String()
}

func parseEvaluationResponse(content string) (EvaluationResult, error) {
	type payload struct {
		Scores   *RubricScores `json:"scores"`
		Feedback string        `json:"feedback"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return EvaluationResult{}, fmt.Errorf("parse evaluation json: %w", err)
	}

	if data.Scores == nil {
		return EvaluationResult{}, fmt.Errorf("evaluation response is missing scores")
	}

	return EvaluationResult{
		Scores:   *data.Scores,
		Feedback: strings.TrimSpace(data.Feedback),
	}, nil
}
