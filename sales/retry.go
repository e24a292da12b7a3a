package sales

import (
	"context"
	"math/rand"
	"time"

	"github.com/smartpasal/pos-ledger/ledger"
)

// withRetry runs attempt until it succeeds, fails with a non-retryable
// error, or MaxAttempts is reached. Each attempt must re-read its inputs.
func (c *Coordinator) withRetry(ctx context.Context, operation string, attempt func() error) error {
	for n := 1; ; n++ {
		err := attempt()
		if err == nil || !ledger.IsRetryable(err) {
			return err
		}

		c.metrics.CommitConflict(operation)
		if n >= c.cfg.MaxAttempts {
			c.logger.WithContext(ctx).WithOperation(operation).Warn("Giving up after repeated version conflicts",
				"attempts", n,
			)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(n)):
		}
	}
}

const maxBackoff = 250 * time.Millisecond

// backoff doubles per attempt, capped, with up to 100% jitter.
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.cfg.BaseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + time.Duration(rand.Int63n(int64(d)+1))
}
