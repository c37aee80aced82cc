package grouperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKind(t *testing.T) {
	err := New(AlreadyHandled, "", "request %d", 42)
	assert.True(t, IsKind(err, AlreadyHandled))
	assert.False(t, IsKind(err, Conflict))

	wrapped := fmt.Errorf("respond: %w", err)
	assert.True(t, IsKind(wrapped, AlreadyHandled))
	assert.False(t, IsKind(errors.New("plain"), AlreadyHandled))
	assert.False(t, IsKind(nil, AlreadyHandled))
}

func TestWrap_NilCause(t *testing.T) {
	assert.NoError(t, Wrap(nil, Conflict, ReasonRetriesExhausted, "transfer"))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("write conflict")
	err := Wrap(cause, Conflict, ReasonRetriesExhausted, "transfer")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ReasonRetriesExhausted, ReasonOf(err))
	assert.Contains(t, err.Error(), "conflict (retries_exhausted): transfer: write conflict")
}

func TestBusiness(t *testing.T) {
	assert.True(t, Business(New(QuotaExceeded, ReasonOwnedGroupLimit, "limit")))
	assert.False(t, Business(errors.New("socket closed")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "successor_not_member", SuccessorNotMember.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
