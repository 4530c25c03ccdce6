package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// RetryPolicy bounds how transactional writes respond to lock contention.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultRetryAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRetryBackoff
	}
	return p
}

// WithTxRetry runs fn inside a transaction and retries it with exponential
// backoff when the database reports a lock-wait timeout or serialization
// failure. Every attempt gets a fresh transaction; non-retryable errors pass
// through unchanged. Exhausted retries surface as CONCURRENCY_CONFLICT.
func (c *Client) WithTxRetry(ctx context.Context, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	policy = policy.normalized()

	backoff := retry.WithMaxRetries(uint64(policy.MaxRetries), retry.NewExponential(policy.Backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := c.WithTx(ctx, fn)
		if txErr == nil {
			return nil
		}
		if IsLockTimeout(txErr) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err == nil {
		return nil
	}
	if IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "lock wait retries exhausted")
	}
	return err
}
