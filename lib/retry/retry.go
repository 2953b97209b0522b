package retry

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("retry")

// Do runs f up to attempts times. Errors for which retryable returns false
// are surfaced immediately; retryable errors back off linearly
// (interval * attempt number) between tries. The wait is cancellable
// through ctx.
func Do[T any](ctx context.Context, attempts int, interval time.Duration, retryable func(error) bool, f func() (T, error)) (result T, err error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = f()
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			log.Debugf("non-retryable error: %s", err)
			return result, err
		}
		if attempt == attempts {
			break
		}

		wait := interval * time.Duration(attempt)
		log.Infof("retryable error on attempt %d/%d, retrying in %s: %s", attempt, attempts, wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	log.Errorf("failed after %d attempts, last error: %s", attempts, err)
	return result, xerrors.Errorf("failed after %d attempts: %w", attempts, err)
}
