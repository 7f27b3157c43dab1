package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	require.ErrorIs(t, ErrForbidden, ErrUnauthorized)
	require.ErrorIs(t, ErrNotPaperOwner, ErrForbidden)
	require.ErrorIs(t, ErrPaperNotFound, ErrNotFound)
	require.ErrorIs(t, ErrDuplicateQuestion, ErrValidation)
	require.ErrorIs(t, ErrSubmissionFinalized, ErrConflict)
	require.NotErrorIs(t, ErrUnknownIdentity, ErrForbidden)

	cause := errors.New("boom")
	err := error(&EvaluationError{PaperID: 3, StudentEmail: "s@example.com", Order: 2, Err: cause})
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "question 2")
}
