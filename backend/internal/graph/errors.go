package graph

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "reqgraph/backend/pkg/errors"
)

// classifyError maps a driver error onto the store error taxonomy.
// Connectivity failures and timeouts become StoreUnavailable, schema and
// constraint rejections become StoreConstraint, and anything else is wrapped
// unchanged.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var unavailable *apperrors.ErrStoreUnavailable
	var constraint *apperrors.ErrStoreConstraint
	if errors.As(err, &unavailable) || errors.As(err, &constraint) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.NewContextCancelled(op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewStoreUnavailable(op, err)
	case neo4j.IsConnectivityError(err):
		return apperrors.NewStoreUnavailable(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewStoreUnavailable(op, err)
	}

	var dbErr *neo4j.Neo4jError
	if errors.As(err, &dbErr) {
		switch {
		case strings.Contains(dbErr.Code, "ConstraintValidationFailed"),
			strings.Contains(dbErr.Code, ".Schema."):
			return apperrors.NewStoreConstraint(op, dbErr.Msg, err)
		case strings.HasPrefix(dbErr.Code, "Neo.TransientError."):
			return apperrors.NewStoreUnavailable(op, err)
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
