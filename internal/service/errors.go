package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services matches one of these with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = fmt.Errorf("%w: forbidden", ErrUnauthorized)
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("evaluation engine failure")
)

// Domain errors.
var (
	ErrUnknownIdentity      = fmt.Errorf("%w: unknown identity", ErrUnauthorized)
	ErrRoleNotPermitted     = fmt.Errorf("%w: role not permitted", ErrForbidden)
	ErrNotPaperOwner        = fmt.Errorf("%w: paper belongs to another teacher", ErrForbidden)
	ErrNotRostered          = fmt.Errorf("%w: student is not on the teacher's roster", ErrForbidden)
	ErrIdentityExists       = fmt.Errorf("%w: identity already registered", ErrConflict)
	ErrPaperNotFound        = fmt.Errorf("%w: paper", ErrNotFound)
	ErrSubmissionNotFound   = fmt.Errorf("%w: submission", ErrNotFound)
	ErrStudentNotFound      = fmt.Errorf("%w: student", ErrNotFound)
	ErrRosterEntryNotFound  = fmt.Errorf("%w: roster entry", ErrNotFound)
	ErrAlreadyRostered      = fmt.Errorf("%w: student already on roster", ErrValidation)
	ErrUnknownQuestion      = fmt.Errorf("%w: answer references an unknown question", ErrValidation)
	ErrDuplicateQuestion    = fmt.Errorf("%w: question answered more than once", ErrValidation)
	ErrEmptyContent         = fmt.Errorf("%w: content empty after sanitization", ErrValidation)
	ErrPaperExpired         = fmt.Errorf("%w: paper is expired", ErrConflict)
	ErrPaperEvaluated       = fmt.Errorf("%w: paper is already evaluated", ErrConflict)
	ErrPaperNotEvaluated    = fmt.Errorf("%w: paper has not been evaluated", ErrConflict)
	ErrNoSubmissions        = fmt.Errorf("%w: paper has no submissions", ErrConflict)
	ErrSubmissionFinalized  = fmt.Errorf("%w: submission already finalized", ErrConflict)
	ErrConcurrentUpdate     = fmt.Errorf("%w: paper changed during the operation", ErrConflict)
	ErrEvaluatorUnavailable = fmt.Errorf("%w: evaluator unavailable", ErrUpstream)
)

// EvaluationError reports the answer whose scoring failed. It matches ErrUpstream.
type EvaluationError struct {
	PaperID      uint
	StudentEmail string
	Order        int
	Err          error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate paper %d, student %s, question %d: %v", e.PaperID, e.StudentEmail, e.Order, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}
