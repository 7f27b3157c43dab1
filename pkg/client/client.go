// Package client is a small Go SDK for the Perception API used by student tooling.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/perception-api/internal/dto"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("perception api: %d %s", e.Status, e.Message)
}

// Client calls the API on behalf of one bearer token.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New builds a client for baseURL, e.g. "https://perception.example.com".
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempt fetches the paper as the student sees it, including any saved draft.
func (c *Client) Attempt(ctx context.Context, paperID uint) (dto.AttemptView, error) {
	var view dto.AttemptView
	err := c.do(ctx, fiber.MethodGet, fmt.Sprintf("/api/v1/papers/%d/attempt", paperID), nil, &view)
	return view, err
}

// SaveAnswers upserts the student's answers. final marks the explicit submit.
func (c *Client) SaveAnswers(ctx context.Context, paperID uint, answers map[int]string, final bool) (dto.SubmissionSavedResponse, error) {
	payload := dto.SubmissionUpsertRequest{
		Answers: make([]dto.AnswerRequest, 0, len(answers)),
		Final:   final,
	}
	for order, text := range answers {
		payload.Answers = append(payload.Answers, dto.AnswerRequest{Order: order, Answer: text})
	}

	var saved dto.SubmissionSavedResponse
	err := c.do(ctx, fiber.MethodPut, fmt.Sprintf("/api/v1/papers/%d/submission", paperID), payload, &saved)
	return saved, err
}

// Result fetches the student's own submission and, once evaluated, its scores.
func (c *Client) Result(ctx context.Context, paperID uint) (dto.StudentResultView, error) {
	var view dto.StudentResultView
	err := c.do(ctx, fiber.MethodGet, fmt.Sprintf("/api/v1/papers/%d/submission", paperID), nil, &view)
	return view, err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type response struct {
	status int
	raw    []byte
	errs   []error
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	agent.Timeout(timeout)
	if body != nil {
		agent.JSON(body)
	}

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("prepare %s %s: %w", method, path, err)
	}

	// The agent has no notion of ctx, so the exchange runs aside and is
	// abandoned on cancellation; its own timeout still bounds it.
	done := make(chan response, 1)
	go func() {
		status, raw, errs := agent.Bytes()
		done <- response{status: status, raw: raw, errs: errs}
	}()

	var resp response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp = <-done:
	}
	if len(resp.errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(resp.errs...))
	}
	status, raw := resp.status, resp.raw

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= fiber.StatusBadRequest {
			return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if status >= fiber.StatusBadRequest || !env.Success {
		return &APIError{Status: status, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
