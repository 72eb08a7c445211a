package graph

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"

	apperrors "reqgraph/backend/pkg/errors"
)

func TestClassifyError(t *testing.T) {
	plain := errors.New("syntax error near MATCH")

	tests := []struct {
		name    string
		err     error
		errType apperrors.ErrorType
	}{
		{"deadline", context.DeadlineExceeded, apperrors.ErrorTypeStoreUnavailable},
		{"cancelled", context.Canceled, apperrors.ErrorTypeContext},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, apperrors.ErrorTypeStoreUnavailable},
		{"constraint", &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.ConstraintValidationFailed", Msg: "already exists"}, apperrors.ErrorTypeStoreConstraint},
		{"transient", &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "unavailable"}, apperrors.ErrorTypeStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError("upsert", tt.err)
			assert.True(t, apperrors.IsErrorType(got, tt.errType), "got %v", got)
		})
	}

	t.Run("other errors are wrapped unchanged", func(t *testing.T) {
		got := classifyError("query", plain)
		assert.ErrorIs(t, got, plain)
		assert.False(t, apperrors.IsRetryable(got))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyError("query", nil))
	})

	t.Run("already classified", func(t *testing.T) {
		err := apperrors.NewStoreConstraint("upsert", "dangling", nil)
		assert.Same(t, err, classifyError("upsert", err))
	})
}
