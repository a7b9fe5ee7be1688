package ceremony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/setup-mpc-server/interfaces"
)

// persist runs a transcript store call under the retry policy. Errors that cannot be
// fixed by retrying stop the loop early. Any failure is reported as ErrPersistenceUnavailable.
func (c *Coordinator) persist(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.Retry.InitialInterval
	eb.MaxInterval = c.cfg.Retry.MaxInterval
	eb.MaxElapsedTime = 0
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.Retry.MaxRetries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err != nil && permanentStoreError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		c.log.Warn("Transcript store write failed, retrying",
			"op", op,
			"attempt", attempt,
			"retryIn", next,
			"err", err)
		c.obs.OnPersistenceRetry(op)
	})
	if err != nil {
		c.log.Error("Transcript store write failed", "op", op, "attempts", attempt, "err", err)
		return fmt.Errorf("%w: %s: %w", ErrPersistenceUnavailable, op, err)
	}
	return nil
}

func permanentStoreError(err error) bool {
	return errors.Is(err, interfaces.ErrStoreClosed) ||
		errors.Is(err, interfaces.ErrPositionConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
