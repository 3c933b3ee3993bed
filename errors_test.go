package neoschema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmeta/neoschema/graph"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  NewNotFoundError(`class "vehicle" does not exist`),
			want: `[NOT_FOUND] class "vehicle" does not exist`,
		},
		{
			name: "with cause",
			err:  NewImportError("decoding json input", errors.New("unexpected EOF")),
			want: "[IMPORT_FAILED] decoding json input: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("counter vanished")
	err := NewReferenceError("advancing namespace car", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("import aborted: %w", NewSchemaViolationError(`class "log" does not accept data nodes`))

	assert.True(t, errors.Is(err, &Error{Code: ErrCodeSchemaViolation}))
	assert.False(t, errors.Is(err, &Error{Code: ErrCodeValidationFailed}))
}

func TestError_WithContext(t *testing.T) {
	err := NewValidationError("column value is not an integer").
		WithContext("column", "age").
		WithContext("row", 7)

	require.NotNil(t, err.Context)
	assert.Equal(t, "age", err.Context["column"])
	assert.Equal(t, 7, err.Context["row"])
}

func TestGraphErrorsPassThroughUnchanged(t *testing.T) {
	cause := graph.NewNodeNotFoundError("node n-42 not found")
	err := fmt.Errorf("updating data node: %w", cause)

	assert.True(t, errors.Is(err, &graph.Error{Code: graph.ErrCodeNodeNotFound}))
	assert.False(t, errors.Is(err, &Error{Code: ErrCodeNotFound}),
		"store errors keep their own code space")

	var gerr *graph.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, graph.ErrCodeNodeNotFound, gerr.Code)
}
