package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Transient PostgreSQL failure codes. Commands hitting these are safe to
// re-run because the usecase layer re-applies them against fresh state.
var retryablePgCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Retrier implements usecase.Retrier with exponential backoff on transient
// database errors.
type Retrier struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsedTime  time.Duration
	logger          zerolog.Logger
}

func NewRetrier(logger zerolog.Logger) *Retrier {
	return &Retrier{
		maxAttempts:     4,
		initialInterval: 50 * time.Millisecond,
		maxInterval:     1 * time.Second,
		maxElapsedTime:  10 * time.Second,
		logger:          logger.With().Str("component", "pg_retrier").Logger(),
	}
}

// Retry runs operation, backing off and re-running on retryable errors
// until it succeeds or maxAttempts is reached.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.maxInterval
	policy.MaxElapsedTime = r.maxElapsedTime

	attempt := 0

	return backoff.Retry(func() error {
		attempt++

		err := operation()
		if err == nil {
			return nil
		}
		if !isRetryableError(err) || attempt >= r.maxAttempts {
			return backoff.Permanent(err)
		}

		r.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("transient database error, retrying")
		return err
	}, backoff.WithContext(policy, ctx))
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := retryablePgCodes[pgErr.Code]
	return ok
}
