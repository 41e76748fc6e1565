package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// errRace is returned by a single attempt whose compare-and-swap lost.
var errRace = errors.New("store: lost race")

// retry runs attempt until it stops losing races. Any error other than
// errRace ends the loop immediately.
func retry(ctx context.Context, maxTries int, attempt func() ([]byte, error)) ([]byte, error) {
	if maxTries <= 0 {
		maxTries = DefaultMaxRetries
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond

	out, err := backoff.Retry(ctx, func() ([]byte, error) {
		v, err := attempt()
		if err != nil && !errors.Is(err, errRace) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxTries)))

	if errors.Is(err, errRace) {
		return nil, fmt.Errorf("%w after %d attempts", ErrConflict, maxTries)
	}
	return out, err
}

// apply runs fn and folds ErrSkip into a no-write result.
func apply(fn UpdateFunc, cur []byte) (next []byte, write bool, err error) {
	next, err = fn(cur)
	if errors.Is(err, ErrSkip) {
		return cur, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}
