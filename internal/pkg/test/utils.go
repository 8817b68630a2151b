package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// Invoke makes a request call, the body is drained and closed on cleanup
func Invoke(t *testing.T, cl *http.Client, r *http.Request) *http.Response {
	t.Helper()
	resp, err := cl.Do(r)
	require.Nil(t, err, "not nil error = %v", err)
	t.Cleanup(func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	})
	return resp
}

// CheckCode fails the test on unexpected status, response body is shown in the failure
func CheckCode(t *testing.T, resp *http.Response, expected int) *http.Response {
	t.Helper()
	if resp.StatusCode == expected {
		return resp
	}
	b, _ := io.ReadAll(resp.Body)
	require.Equal(t, expected, resp.StatusCode, string(b))
	return resp
}

// Decode reads json response body
func Decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var res T
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

// Ctx returns test context cancelled on cleanup
func Ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cf := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cf)
	return ctx
}

// Code serves request with echo and checks response code
func Code(t *testing.T, e *echo.Echo, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	require.Equal(t, code, res.Code, res.Body.String())
	return res
}

// PostJSON makes POST request with json body
func PostJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// RStr reads all to string
func RStr(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.Nil(t, err)
	return string(b)
}
