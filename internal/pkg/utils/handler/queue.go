package handler

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// FailureFunc decides if failed job must be rescheduled.
// Returns retry flag and delay, zero delay means the default backoff
type FailureFunc[TM any] func(ctx context.Context, m *TM, err error, j *gue.Job) (bool, time.Duration)

// Opts configures queue handler
type Opts[TM any] struct {
	backoff        gue.Backoff
	timeout        time.Duration
	failureHandler FailureFunc[TM]
}

// Create wraps typed worker func into gue.WorkFunc
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		if err := json.Unmarshal(j.Args, &m); err != nil {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Msg("can't unmarshal, drop msg")
			return nil
		}
		wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
		defer cf()
		err := hf(wrkCtx, &m, data)
		if err == nil {
			return nil
		}
		goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("fail")
		retry, delay := opts.failureHandler(ctx, &m, err, j)
		if !retry {
			goapp.Log.Warn().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("no retry")
			return nil
		}
		if delay == 0 {
			delay = opts.backoff(int(j.ErrorCount + 1))
		}
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// DefaultOpts returns opts with 15 min timeout, default backoff and max 3 retries
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, failureHandler: MaxRetries[TM](3), backoff: DefaultBackoff()}
}

// DefaultBackoff returns full jitter backoff growing by 10s each retry
func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return fullJitter(time.Duration(retries) * time.Second * 10)
	}
}

// NoBackoff returns immediate retries
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// DefaultBackoffOrTest returns NoBackoff for testing mode
func DefaultBackoffOrTest(test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return DefaultBackoff()
}

// MaxRetries allows n retries of a job
func MaxRetries[TM any](n int32) FailureFunc[TM] {
	return func(ctx context.Context, m *TM, err error, j *gue.Job) (bool, time.Duration) {
		return j.ErrorCount < n, 0
	}
}

func (o *Opts[TM]) WithFailure(failureHandler FailureFunc[TM]) *Opts[TM] {
	o.failureHandler = failureHandler
	return o
}

func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

// fullJitter return randomized duration in interval [0, t)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	return time.Duration(float64(t) * rand.Float64())
}
