package retry

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded retry: Attempts calls at most,
// waiting Delay*n before the n-th retry
type Policy struct {
	Attempts int
	Delay    time.Duration
	timer    func() backoff.Timer
}

// Default returns 3 attempts policy with 2s base delay
func Default() *Policy {
	return &Policy{Attempts: 3, Delay: 2 * time.Second}
}

// WithTimer sets timer used for waiting between attempts
func (p *Policy) WithTimer(f func() backoff.Timer) *Policy {
	p.timer = f
	return p
}

// Do invokes op until it succeeds, returns a non retryable error or attempts are exhausted
func Do[T any](ctx context.Context, p *Policy, op func() (T, bool, error)) (T, error) {
	var res T
	if p == nil {
		p = Default()
	}
	attempt := 0
	f := func() error {
		attempt++
		var err error
		var retryable bool
		res, retryable, err = op()
		if err != nil && !retryable {
			return backoff.Permanent(err)
		}
		return err
	}
	n := func(err error, d time.Duration) {
		goapp.Log.Warn().Err(err).Int("attempt", attempt).Dur("after", d).Msg("retry")
	}
	err := backoff.RetryNotifyWithTimer(f, p.backoff(ctx), n, p.newTimer())
	return res, err
}

func (p *Policy) backoff(ctx context.Context) backoff.BackOff {
	retries := 0
	if p.Attempts > 1 {
		retries = p.Attempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(&linear{delay: p.Delay}, uint64(retries)), ctx)
}

func (p *Policy) newTimer() backoff.Timer {
	if p.timer == nil {
		return nil
	}
	return p.timer()
}

// linear waits delay, 2*delay, 3*delay...
type linear struct {
	delay time.Duration
	n     int
}

func (b *linear) NextBackOff() time.Duration {
	b.n++
	return b.delay * time.Duration(b.n)
}

func (b *linear) Reset() {
	b.n = 0
}
