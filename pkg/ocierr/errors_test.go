package ocierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflict_ErrorsAs(t *testing.T) {
	err := fmt.Errorf("commit failed: %w", &Conflict{Expected: "h0", Actual: "h1", Hints: []string{"rebase onto h1"}})

	var conflict *Conflict
	require := errors.As(err, &conflict)
	assert.True(t, require)
	assert.Equal(t, "h0", conflict.Expected)
	assert.Equal(t, "h1", conflict.Actual)
}

func TestValidationFailed_MultiField(t *testing.T) {
	err := &ValidationFailed{Fields: []FieldError{
		{Field: "name", Message: "required"},
		{Field: "color", Message: "must match #RRGGBB"},
	}}
	assert.Contains(t, err.Error(), "and 1 more")
}

func TestNotFound_Unwrap(t *testing.T) {
	cause := errors.New("row missing")
	err := &NotFound{Kind: "branch", ID: "feat/x", Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestProtectedBranch_Error(t *testing.T) {
	err := &ProtectedBranch{Branch: "main"}
	assert.Equal(t, `branch "main" is protected`, err.Error())
}
