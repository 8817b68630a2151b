package utils

import (
	"net/http"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo/v4"
)

// HTTPError logs the error and converts it to an echo error.
// Server side failures get a generic message
func HTTPError(err error) error {
	code := HTTPCode(err)
	if code >= http.StatusInternalServerError {
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(code, "Service error")
	}
	goapp.Log.Warn().Err(err).Send()
	return echo.NewHTTPError(code, err.Error())
}
