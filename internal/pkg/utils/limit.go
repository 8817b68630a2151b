package utils

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo/v4"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter creates in-memory limiter from formatted rate, ex.: "10-H".
// trustForwardHeader takes the client IP from X-Forwarded-For or X-Real-IP,
// enable it only behind a proxy that overwrites these headers
func NewRateLimiter(rate string, trustForwardHeader bool) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("can't parse rate '%s': %w", rate, err)
	}
	return limiter.New(memory.NewStore(), r, limiter.WithTrustForwardHeader(trustForwardHeader)), nil
}

// RateLimit returns echo middleware limiting requests by client IP
func RateLimit(l *limiter.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.GetIPKey(c.Request())
			lc, err := l.Get(c.Request().Context(), key)
			if err != nil {
				goapp.Log.Error().Err(err).Msg("limiter")
				return next(c)
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))
			if lc.Reached {
				goapp.Log.Warn().Str("key", goapp.Sanitize(key)).Msg("rate limit reached")
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			}
			return next(c)
		}
	}
}
