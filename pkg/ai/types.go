package ai

import "context"

// EvaluationInput contains the artefacts needed to grade one answer.
type EvaluationInput struct {
	Question      string
	ModelAnswer   string
	StudentAnswer string
}

// RubricScores holds the four criteria scored by the engine, each on a 0-10 scale.
type RubricScores struct {
	Clarity      float64 `json:"clarity"`
	Relevance    float64 `json:"relevance"`
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Average      float64 `json:"average"`
}

// EvaluationResult is the structured feedback returned by the evaluator.
type EvaluationResult struct {
	Scores   RubricScores           `json:"scores"`
	Feedback string                 `json:"feedback"`
	Raw      map[string]interface{} `json:"raw,omitempty"`
}

// Evaluator describes a model capable of grading free-text answers against a model answer.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error)
}
