package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "reqgraph/backend/pkg/errors"
)

func TestConnect_RetriesUnreachableServer(t *testing.T) {
	start := time.Now()
	_, err := Connect(context.Background(), ConnectConfig{
		URI:           "bolt://127.0.0.1:1",
		User:          "neo4j",
		Password:      "password",
		Timeout:       time.Second,
		MaxTries:      3,
		RetryInterval: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStoreUnavailable), err.Error())
	// Two backoff waits of at least half the 50ms and 75ms intervals.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestConnect_BadURIFailsAtOnce(t *testing.T) {
	start := time.Now()
	_, err := Connect(context.Background(), ConnectConfig{
		URI:           "ftp://127.0.0.1:1",
		MaxTries:      5,
		RetryInterval: time.Second,
	})
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, ConnectConfig{
		URI:           "bolt://127.0.0.1:1",
		MaxTries:      5,
		RetryInterval: time.Second,
	})
	require.Error(t, err)
}
