package dto

import (
	"time"

	"github.com/noah-isme/perception-api/internal/models"
)

// QuestionRequest is one authored question with its model answer.
type QuestionRequest struct {
	Question string `json:"question" validate:"required,max=10000"`
	Answer   string `json:"answer" validate:"required,max=20000"`
}

// PaperCreateRequest is the payload used by teachers to author a paper.
type PaperCreateRequest struct {
	Title     string            `json:"title" validate:"required,max=255"`
	Questions []QuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// PaperSummary is a list entry for the dashboards.
type PaperSummary struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	TeacherEmail    string    `json:"teacher_email"`
	Expired         bool      `json:"expired"`
	Evaluated       bool      `json:"evaluated"`
	QuestionCount   int       `json:"question_count"`
	SubmissionCount *int64    `json:"submission_count,omitempty"`
	Attempted       *bool     `json:"attempted,omitempty"`
	Finalized       *bool     `json:"finalized,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuestionResponse exposes a question including its model answer.
type QuestionResponse struct {
	Order    int    `json:"order"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AttemptQuestion exposes a question without its model answer.
type AttemptQuestion struct {
	Order    int    `json:"order"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AttemptView is returned to students attempting a paper. Answer holds the student's saved draft.
type AttemptView struct {
	ID        uint              `json:"id"`
	Title     string            `json:"title"`
	Expired   bool              `json:"expired"`
	Finalized bool              `json:"finalized"`
	Questions []AttemptQuestion `json:"questions"`
}

// ScoreResponse is the rubric breakdown of an answer.
type ScoreResponse struct {
	Clarity      float64 `json:"clarity"`
	Relevance    float64 `json:"relevance"`
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Average      float64 `json:"average"`
}

// NewScoreResponse converts a score model.
func NewScoreResponse(score models.Score) ScoreResponse {
	return ScoreResponse{
		Clarity:      score.Clarity,
		Relevance:    score.Relevance,
		Accuracy:     score.Accuracy,
		Completeness: score.Completeness,
		Average:      score.Average,
	}
}

// AnswerResponse pairs a student answer with its evaluation.
type AnswerResponse struct {
	Order    int            `json:"order"`
	Answer   string         `json:"answer"`
	Scores   *ScoreResponse `json:"scores"`
	Feedback string         `json:"feedback"`
}

// SubmissionResponse is a submission as shown to the paper owner.
type SubmissionResponse struct {
	StudentEmail string           `json:"student_email"`
	Finalized    bool             `json:"finalized"`
	SubmittedAt  *time.Time       `json:"submitted_at"`
	TotalScore   *float64         `json:"total_score"`
	Answers      []AnswerResponse `json:"answers"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewSubmissionResponse converts a submission. Scores are only exposed when includeScores is set.
func NewSubmissionResponse(submission models.Submission, includeScores bool) SubmissionResponse {
	response := SubmissionResponse{
		StudentEmail: submission.StudentEmail,
		Finalized:    submission.Finalized,
		SubmittedAt:  submission.SubmittedAt,
		Answers:      make([]AnswerResponse, 0, len(submission.Answers)),
		UpdatedAt:    submission.UpdatedAt,
	}
	if includeScores {
		total := submission.TotalScore
		response.TotalScore = &total
	}
	for _, answer := range submission.Answers {
		item := AnswerResponse{Order: answer.Order, Answer: answer.Answer}
		if includeScores && answer.Scored {
			score := NewScoreResponse(answer.Score)
			item.Scores = &score
			item.Feedback = answer.Feedback
		}
		response.Answers = append(response.Answers, item)
	}
	return response
}

// TeacherPaperView is the full paper as seen by its owner.
type TeacherPaperView struct {
	ID           uint                 `json:"id"`
	Title        string               `json:"title"`
	TeacherEmail string               `json:"teacher_email"`
	Expired      bool                 `json:"expired"`
	Evaluated    bool                 `json:"evaluated"`
	EvaluatedAt  *time.Time           `json:"evaluated_at"`
	MaxScore     float64              `json:"max_score"`
	Questions    []QuestionResponse   `json:"questions"`
	Submissions  []SubmissionResponse `json:"submissions"`
	CreatedAt    time.Time            `json:"created_at"`
}

// NewTeacherPaperView assembles the owner's view of a paper.
func NewTeacherPaperView(paper models.Paper, submissions []models.Submission) TeacherPaperView {
	view := TeacherPaperView{
		ID:           paper.ID,
		Title:        paper.Title,
		TeacherEmail: paper.TeacherEmail,
		Expired:      paper.Expired,
		Evaluated:    paper.Evaluated,
		EvaluatedAt:  paper.EvaluatedAt,
		MaxScore:     paper.MaxScore(),
		Questions:    make([]QuestionResponse, 0, len(paper.Questions)),
		Submissions:  make([]SubmissionResponse, 0, len(submissions)),
		CreatedAt:    paper.CreatedAt,
	}
	for _, question := range paper.Questions {
		view.Questions = append(view.Questions, QuestionResponse{
			Order:    question.Order,
			Question: question.Prompt,
			Answer:   question.ModelAnswer,
		})
	}
	for _, submission := range submissions {
		view.Submissions = append(view.Submissions, NewSubmissionResponse(submission, paper.Evaluated))
	}
	return view
}

// ResultEntry is one question of the student result view.
type ResultEntry struct {
	Order    int            `json:"order"`
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Scores   *ScoreResponse `json:"scores"`
	Feedback string         `json:"feedback"`
}

// StudentResultView is a student's own submission joined with the paper questions.
type StudentResultView struct {
	ID         uint          `json:"id"`
	Title      string        `json:"title"`
	Expired    bool          `json:"expired"`
	Evaluated  bool          `json:"evaluated"`
	Finalized  bool          `json:"finalized"`
	MaxScore   float64       `json:"max_score"`
	TotalScore *float64      `json:"total_score"`
	Entries    []ResultEntry `json:"qs_and_ans"`
}

// NewStudentResultView joins questions with the student's answers by order.
func NewStudentResultView(paper models.Paper, submission models.Submission) StudentResultView {
	view := StudentResultView{
		ID:        paper.ID,
		Title:     paper.Title,
		Expired:   paper.Expired,
		Evaluated: paper.Evaluated,
		Finalized: submission.Finalized,
		MaxScore:  paper.MaxScore(),
		Entries:   make([]ResultEntry, 0, len(paper.Questions)),
	}
	if paper.Evaluated {
		total := submission.TotalScore
		view.TotalScore = &total
	}
	for _, question := range paper.Questions {
		entry := ResultEntry{Order: question.Order, Question: question.Prompt}
		if answer, ok := submission.AnswerFor(question.Order); ok {
			entry.Answer = answer.Answer
			if paper.Evaluated && answer.Scored {
				score := NewScoreResponse(answer.Score)
				entry.Scores = &score
				entry.Feedback = answer.Feedback
			}
		}
		view.Entries = append(view.Entries, entry)
	}
	return view
}
