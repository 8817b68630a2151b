package share

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/jamjock/jamjock/internal/pkg/api"
	storage "github.com/jamjock/jamjock/internal/pkg/minio"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/token"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

// Issuer signs and verifies share tokens
type Issuer interface {
	Issue(ctx context.Context, songID string) (*token.Issued, error)
	Verify(ctx context.Context, tokenStr, songID string) (*persistence.Song, error)
}

// Filer provides audio
type Filer interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
	SignedURL(ctx context.Context, name string) (string, error)
}

// DB loads songs
type DB interface {
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
}

// Data keeps data required for service work
type Data struct {
	Port   int
	Issuer Issuer
	Filer  Filer
	DB     DB
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting HTTP JamJock share service")

	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 5 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Issuer == nil {
		return errors.New("no token issuer")
	}
	if data.Filer == nil {
		return errors.New("no filer")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("jamjock_share", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/token", issue(data))
	e.POST("/token/verify", verify(data))
	e.GET("/songs/:id/preview", previewURL(data))
	e.GET("/songs/:id/full", fullURL(data))
	e.GET("/audio/:id/preview", previewAudio(data))
	e.HEAD("/audio/:id/preview", previewAudio(data))
	e.GET("/audio/:id/full", fullAudio(data))
	e.HEAD("/audio/:id/full", fullAudio(data))
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

type tokenInput struct {
	SongID string `json:"songId"`
	Token  string `json:"token,omitempty"`
}

type tokenResult struct {
	Token    string    `json:"token"`
	ShareURL string    `json:"shareUrl"`
	Expires  time.Time `json:"expiresAt"`
}

type verifyResult struct {
	Valid bool      `json:"valid"`
	Song  *api.Song `json:"song,omitempty"`
}

type urlResult struct {
	URL string `json:"url"`
}

func issue(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("issue method")()
		var in tokenInput
		if err := c.Bind(&in); err != nil {
			return utils.HTTPError(fmt.Errorf("can't decode input: %v: %w", err, utils.ErrInvalidInput))
		}
		res, err := data.Issuer.Issue(c.Request().Context(), in.SongID)
		if err != nil {
			return utils.HTTPError(err)
		}
		return c.JSON(http.StatusOK, tokenResult{Token: res.Token, ShareURL: res.ShareURL, Expires: res.Expires})
	}
}

func verify(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("verify method")()
		var in tokenInput
		if err := c.Bind(&in); err != nil {
			return utils.HTTPError(fmt.Errorf("can't decode input: %v: %w", err, utils.ErrInvalidInput))
		}
		if in.Token == "" || in.SongID == "" {
			return utils.HTTPError(fmt.Errorf("no token or songId: %w", utils.ErrInvalidInput))
		}
		song, err := data.Issuer.Verify(c.Request().Context(), in.Token, in.SongID)
		if err != nil {
			return utils.HTTPError(err)
		}
		return c.JSON(http.StatusOK, verifyResult{Valid: true, Song: api.ToSong(song)})
	}
}

func previewURL(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("preview url method")()
		ctx := c.Request().Context()
		key, err := previewKey(ctx, data, c.Param("id"))
		if err != nil {
			return utils.HTTPError(err)
		}
		return signed(c, data, key)
	}
}

func fullURL(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("full url method")()
		key, err := fullKey(c, data)
		if err != nil {
			return utils.HTTPError(err)
		}
		return signed(c, data, key)
	}
}

func previewAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("preview audio method")()
		key, err := previewKey(c.Request().Context(), data, c.Param("id"))
		if err != nil {
			return utils.HTTPError(err)
		}
		return serveFile(c, data, key)
	}
}

func fullAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("full audio method")()
		key, err := fullKey(c, data)
		if err != nil {
			return utils.HTTPError(err)
		}
		return serveFile(c, data, key)
	}
}

func previewKey(ctx context.Context, data *Data, id string) (string, error) {
	song, err := data.DB.LoadSong(ctx, id)
	if err != nil {
		return "", err
	}
	if song == nil || !song.PreviewKey.Valid {
		return "", fmt.Errorf("no preview for '%s': %w", goapp.Sanitize(id), utils.ErrNotFound)
	}
	return song.PreviewKey.String, nil
}

// fullKey requires a valid share token, the record is re-checked by the issuer
func fullKey(c echo.Context, data *Data) (string, error) {
	id := c.Param("id")
	tkn := c.QueryParam("token")
	if tkn == "" {
		return "", fmt.Errorf("no token: %w", utils.ErrInvalidToken)
	}
	song, err := data.Issuer.Verify(c.Request().Context(), tkn, id)
	if err != nil {
		return "", err
	}
	if !song.HasFullAudio() {
		return "", fmt.Errorf("no full audio for '%s': %w", id, utils.ErrNotFound)
	}
	return song.FullAudioKey.String, nil
}

func signed(c echo.Context, data *Data, key string) error {
	res, err := data.Filer.SignedURL(c.Request().Context(), key)
	if err != nil {
		return utils.HTTPError(err)
	}
	return c.JSON(http.StatusOK, urlResult{URL: res})
}

func serveFile(c echo.Context, data *Data, name string) error {
	goapp.Log.Info().Str("file", name).Msg("loading")
	file, err := data.Filer.LoadFile(c.Request().Context(), name)
	if err != nil {
		return fileError(err)
	}
	defer file.Close()
	modTime := time.Time{}
	if stGetter, ok := file.(interface{ Stat() (minio.ObjectInfo, error) }); ok {
		stat, err := stGetter.Stat()
		if err != nil {
			return fileError(err)
		}
		modTime = stat.LastModified
	}
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "audio/mpeg")
	w.Header().Set(echo.HeaderContentDisposition, "inline")
	http.ServeContent(w, c.Request(), name, modTime, file)
	return nil
}

func fileError(err error) error {
	if storage.IsNotFound(err) {
		goapp.Log.Warn().Err(err).Send()
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file")
}
