package clean

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
)

// Cleaner removes song data
type Cleaner interface {
	Clean(ctx context.Context, id string) error
}

// DB provides song records
type DB interface {
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
}

// Data keeps data required for service work
type Data struct {
	Port    int
	Cleaner Cleaner
	DB      DB
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting HTTP JamJock clean service")
	if err := validate(data); err != nil {
		return err
	}

	e := initRoutes(data)

	e.Server.Addr = ":" + strconv.Itoa(data.Port)
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Cleaner == nil {
		return errors.New("no cleaner")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("jamjock_clean", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.DELETE("/delete/:id", deleteSong(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

// deleteSong removes song data, a paid song is removed only with force=true
func deleteSong(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()

		id := c.Param("id")
		ctx := c.Request().Context()
		song, err := data.DB.LoadSong(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't delete")
		}
		if song == nil {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Song '%s' not found", goapp.Sanitize(id)))
		}
		if song.Paid && !utils.ParamTrue(c.QueryParam("force")) {
			return echo.NewHTTPError(http.StatusConflict, "Song is paid, use force=true")
		}
		if err := data.Cleaner.Clean(ctx, id); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't delete")
		}
		goapp.Log.Info().Str("ID", goapp.Sanitize(id)).Bool("paid", song.Paid).Msg("deleted")
		return c.String(http.StatusOK, "deleted")
	}
}
