package client

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/pkg/autosave"
)

// Session tracks one student's attempt of a paper and auto-saves the draft.
type Session struct {
	client  *Client
	paperID uint
	view    dto.AttemptView

	mu      sync.Mutex
	answers map[int]string

	saver *autosave.Coordinator[map[int]string]
}

// OpenSession loads the paper, seeds the draft with any saved answers and starts auto-saving.
// ctx only bounds the initial load; auto-saving runs until Close, which must be
// called when the student leaves the paper.
func (c *Client) OpenSession(ctx context.Context, paperID uint, opts autosave.Options) (*Session, error) {
	view, err := c.Attempt(ctx, paperID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		client:  c,
		paperID: paperID,
		view:    view,
		answers: make(map[int]string, len(view.Questions)),
	}
	for _, question := range view.Questions {
		s.answers[question.Order] = question.Answer
	}

	s.saver = autosave.New(s.save, s.snapshot, opts)
	if !view.Finalized {
		s.saver.Start(context.WithoutCancel(ctx))
	}
	return s, nil
}

// Questions returns the paper's questions in order.
func (s *Session) Questions() []dto.AttemptQuestion {
	questions := append([]dto.AttemptQuestion(nil), s.view.Questions...)
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions
}

// SetAnswer updates the local draft; the next save sends it.
func (s *Session) SetAnswer(order int, text string) {
	s.mu.Lock()
	s.answers[order] = text
	s.mu.Unlock()
}

// Answer returns the local draft for a question.
func (s *Session) Answer(order int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[order]
}

// Save persists the draft now.
func (s *Session) Save(ctx context.Context) error {
	return s.saver.SaveNow(ctx)
}

// Submit sends the final answers. Later calls are no-ops.
func (s *Session) Submit(ctx context.Context) error {
	return s.saver.Submit(ctx)
}

// Submitted reports whether the final save went through.
func (s *Session) Submitted() bool {
	return s.view.Finalized || s.saver.Submitted()
}

// Close stops auto-saving and abandons any save in flight.
func (s *Session) Close() {
	s.saver.Stop()
}

func (s *Session) snapshot() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[int]string, len(s.answers))
	for order, text := range s.answers {
		copied[order] = text
	}
	return copied
}

func (s *Session) save(ctx context.Context, answers map[int]string, final bool) error {
	_, err := s.client.SaveAnswers(ctx, s.paperID, answers, final)
	return err
}
