package api

import (
	"context"
	"errors"
	"time"

	"github.com/meshcall/meshcall/internal/domain"
)

// RetryPolicy controls transport-level retries. It applies to failures
// the Retryable predicate accepts; HTTP status errors are never retried
// by the default predicate.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.Delay == 0 {
		p.Delay = 500 * time.Millisecond
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool {
			return errors.Is(err, domain.ErrConnection) ||
				errors.Is(err, domain.ErrNoInternetConnection)
		}
	}
	return p
}

// withRetry runs fn under the client's retry policy.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || attempt >= c.cfg.Retry.MaxAttempts || !c.cfg.Retry.Retryable(err) {
			return err
		}
		c.log.Debug().Err(err).Int("attempt", attempt).Msg("retrying request")
		select {
		case <-time.After(c.cfg.Retry.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
