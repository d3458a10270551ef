package completion

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrRetriesExhausted is returned when every attempt failed with a transient
// error. The last underlying error is attached via wrapping.
var ErrRetriesExhausted = errors.New("completion: retries exhausted")

// RetryPolicy retries a fallible call up to MaxAttempts times. Classify
// decides whether an error is transient (retried) or terminal (propagated
// immediately). Retries are immediate; there is no backoff.
type RetryPolicy struct {
	MaxAttempts int
	Classify    func(error) bool
}

// DefaultRetryPolicy retries transient provider errors up to maxAttempts.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Classify: IsTransient}
}

// Do runs fn until it succeeds, a terminal error occurs, the context is
// cancelled, or the attempt budget runs out.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if p.MaxAttempts <= 0 {
		return errors.Errorf("completion: max attempts %d must be positive", p.MaxAttempts)
	}
	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "completion: context done before attempt")
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !classify(err) {
			return err
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("component", "completion").
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Msg("transient provider error, retrying")
	}
	return errors.Wrapf(ErrRetriesExhausted, "after %d attempts: %v", p.MaxAttempts, lastErr)
}
