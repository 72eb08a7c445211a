package graph

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// ConnectConfig holds the Neo4j connection settings.
type ConnectConfig struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	Timeout     time.Duration

	// MaxTries bounds connection attempts while Neo4j is unreachable
	// (zero means one attempt). RetryInterval is the first backoff delay.
	MaxTries      uint
	RetryInterval time.Duration
}

// Connect opens a pooled driver and verifies connectivity, retrying with
// exponential backoff while the server is unavailable. Connection failures
// come back as StoreUnavailable; a bad URI or driver setting fails at once.
func Connect(ctx context.Context, cfg ConnectConfig) (*Repository, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}
	tries := cfg.MaxTries
	if tries == 0 {
		tries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	b.MaxInterval = max(DefaultRetryPolicy.MaxInterval, b.InitialInterval)

	log := logger.Get()
	attempt := 0
	driver, err := backoff.Retry(ctx, func() (neo4j.DriverWithContext, error) {
		attempt++
		d, err := dial(ctx, cfg, maxPool, timeout)
		if err != nil && !apperrors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return d, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Neo4j not reachable, retrying",
				zap.String("uri", cfg.URI),
				zap.Int("attempt", attempt),
				zap.Duration("next_attempt_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	return NewRepository(driver, cfg.Database), nil
}

func dial(ctx context.Context, cfg ConnectConfig, maxPool int, timeout time.Duration) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
		c.ConnectionAcquisitionTimeout = timeout
	})
	if err != nil {
		return nil, classifyError("create driver", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, classifyError("verify connectivity", err)
	}
	return driver, nil
}
