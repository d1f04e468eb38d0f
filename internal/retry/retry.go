// Package retry runs an operation again while it fails with an error the
// provider classifies as transient.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is an exponential backoff curve with a bounded number of attempts.
type Policy struct {
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=0"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gte=0"`
	Multiplier   float64       `yaml:"multiplier" validate:"gte=0"`
}

// Classifier reports whether err is worth retrying.
type Classifier func(err error) bool

// Never treats every error as permanent.
func Never(error) bool { return false }

// IsBadConn reports a connection the driver gave up on; every provider
// retries it.
func IsBadConn(err error) bool { return errors.Is(err, driver.ErrBadConn) }

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, fails with a non-transient error, the
// attempt budget is spent or ctx is done. The last error from op is
// returned unchanged.
func Do(ctx context.Context, p Policy, transient Classifier, op func(ctx context.Context) error) error {
	return DoNotify(ctx, p, transient, op, nil)
}

// DoNotify is Do with a callback invoked before each retry.
func DoNotify(ctx context.Context, p Policy, transient Classifier, op func(ctx context.Context) error, notify func(err error, wait time.Duration)) error {
	if transient == nil {
		transient = Never
	}
	return backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), notify)
}
