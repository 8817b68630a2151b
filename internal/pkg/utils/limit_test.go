package utils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_Fail(t *testing.T) {
	_, err := NewRateLimiter("olia", false)
	assert.NotNil(t, err)
}

func newLimitedEcho(t *testing.T, trustForwardHeader bool) func(remote, forwarded string) *httptest.ResponseRecorder {
	t.Helper()
	l, err := NewRateLimiter("2-H", trustForwardHeader)
	require.Nil(t, err)
	e := echo.New()
	e.Use(RateLimit(l))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	return func(remote, forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		resp := httptest.NewRecorder()
		e.ServeHTTP(resp, req)
		return resp
	}
}

func TestRateLimit(t *testing.T) {
	call := newLimitedEcho(t, false)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "").Code)
	resp := call("10.0.0.1:1001", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "2", resp.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002", "").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000", "").Code)
}

func TestRateLimit_IgnoresForwardHeader(t *testing.T) {
	call := newLimitedEcho(t, false)
	accepted := 0
	for i := 0; i < 10; i++ {
		if call("10.0.0.1:1000", fmt.Sprintf("192.168.0.%d", i)).Code == http.StatusOK {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)
}

func TestRateLimit_TrustsForwardHeader(t *testing.T) {
	call := newLimitedEcho(t, true)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "192.168.0.1").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "192.168.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1000", "192.168.0.1").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "192.168.0.2").Code)
}
