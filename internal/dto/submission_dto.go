package dto

// AnswerRequest is one answer keyed by question order.
type AnswerRequest struct {
	Order  int    `json:"order" validate:"required,gt=0"`
	Answer string `json:"answer" validate:"max=20000"`
}

// SubmissionUpsertRequest saves a student's answers. Final marks an explicit submit.
type SubmissionUpsertRequest struct {
	Answers []AnswerRequest `json:"answers" validate:"dive"`
	Final   bool            `json:"final"`
}

// SubmissionSavedResponse acknowledges a save.
type SubmissionSavedResponse struct {
	PaperID   uint `json:"paper_id"`
	Finalized bool `json:"finalized"`
	Changed   bool `json:"changed"`
}

// EvaluationSummary reports the outcome of an evaluation run.
type EvaluationSummary struct {
	PaperID     uint    `json:"paper_id"`
	Submissions int     `json:"submissions"`
	Requests    int     `json:"engine_requests"`
	MaxScore    float64 `json:"max_score"`
	Evaluated   bool    `json:"evaluated"`
}
