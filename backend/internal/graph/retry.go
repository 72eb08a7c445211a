package graph

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// RetryPolicy bounds the retries RetryingStore makes.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is five tries starting at 100ms.
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// RetryingStore retries StoreUnavailable failures of the wrapped store with
// exponential backoff. Every other error is returned on the first attempt.
type RetryingStore struct {
	inner  Store
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingStore wraps inner with the given policy.
func NewRetryingStore(inner Store, policy RetryPolicy) *RetryingStore {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &RetryingStore{inner: inner, policy: policy, logger: logger.Get()}
}

func withRetry[T any](ctx context.Context, s *RetryingStore, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialInterval
	b.MaxInterval = s.policy.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !apperrors.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Graph store unavailable, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("next_attempt_in", next),
				zap.Error(err),
			)
		}),
	)
}

// Upsert implements Store.
func (s *RetryingStore) Upsert(ctx context.Context, nodes []Node, rels []Relationship) (UpsertCounts, error) {
	return withRetry(ctx, s, "upsert", func() (UpsertCounts, error) {
		return s.inner.Upsert(ctx, nodes, rels)
	})
}

// Query implements Store.
func (s *RetryingStore) Query(ctx context.Context, q NeighborQuery) (*Subgraph, error) {
	return withRetry(ctx, s, "query", func() (*Subgraph, error) {
		return s.inner.Query(ctx, q)
	})
}

// Lookup implements Store.
func (s *RetryingStore) Lookup(ctx context.Context, ids []NodeID) ([]Node, error) {
	return withRetry(ctx, s, "lookup", func() ([]Node, error) {
		return s.inner.Lookup(ctx, ids)
	})
}

// Names implements Store.
func (s *RetryingStore) Names(ctx context.Context) ([]NodeName, error) {
	return withRetry(ctx, s, "names", func() ([]NodeName, error) {
		return s.inner.Names(ctx)
	})
}

// Stats implements Store.
func (s *RetryingStore) Stats(ctx context.Context) (Stats, error) {
	return withRetry(ctx, s, "stats", func() (Stats, error) {
		return s.inner.Stats(ctx)
	})
}

// Close implements Store.
func (s *RetryingStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
