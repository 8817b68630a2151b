package create

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/jamjock/jamjock/internal/pkg/analytics"
	"github.com/jamjock/jamjock/internal/pkg/api"
	"github.com/jamjock/jamjock/internal/pkg/catalog"
	"github.com/jamjock/jamjock/internal/pkg/messages"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/jamjock/jamjock/internal/pkg/workflow"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/ulule/limiter/v3"
)

// Workflow generates previews
type Workflow interface {
	CreatePreview(ctx context.Context, in *workflow.PreviewInput) (*persistence.Song, error)
}

// URLSigner provides temporary audio links
type URLSigner interface {
	SignedURL(ctx context.Context, name string) (string, error)
}

// DB loads songs
type DB interface {
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Catalog lists song templates
type Catalog interface {
	All() []*catalog.Entry
}

// Data keeps data required for service work
type Data struct {
	Port          int
	Workflow      Workflow
	Signer        URLSigner
	DB            DB
	MsgSender     MsgSender
	Catalog       Catalog
	Counter       analytics.Counter
	Limiter       *limiter.Limiter
	MaxSampleSize int64
	ClaimTTL      time.Duration
	Now           func() time.Time
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP JamJock create service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 60 * time.Second
	e.Server.WriteTimeout = 180 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Workflow == nil {
		return errors.New("no workflow")
	}
	if data.Signer == nil {
		return errors.New("no URL signer")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	if data.Catalog == nil {
		return errors.New("no catalog")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("jamjock_create", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	if data.MaxSampleSize <= 0 {
		data.MaxSampleSize = workflow.DefaultMaxSampleSize
	}
	if data.ClaimTTL <= 0 {
		data.ClaimTTL = workflow.DefaultClaimTTL
	}
	if data.Now == nil {
		data.Now = time.Now
	}
	var mw []echo.MiddlewareFunc
	if data.Limiter != nil {
		mw = append(mw, utils.RateLimit(data.Limiter))
	}
	e.POST("/songs", createPreview(data), mw...)
	e.POST("/songs/:id/full", createFull(data))
	e.GET("/catalog", listCatalog(data))
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

func createPreview(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("create preview method")()
		ctx := c.Request().Context()

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		if err := validateFormParams(form); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		fileName, sample, err := readSample(form, data.MaxSampleSize)
		if err != nil {
			return utils.HTTPError(err)
		}
		analytics.Track(ctx, data.Counter, analytics.VoiceRecordings)

		song, err := data.Workflow.CreatePreview(ctx, &workflow.PreviewInput{Sample: sample, FileName: fileName,
			TemplateID: formValue(form, api.PrmSongID), OwnerID: formValue(form, api.PrmUserID),
			Email: formValue(form, api.PrmEmail)})
		if err != nil {
			return utils.HTTPError(err)
		}
		res := api.ToSong(song)
		if res.PreviewURL, err = data.Signer.SignedURL(ctx, utils.FromSQLStr(song.PreviewKey)); err != nil {
			return utils.HTTPError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func createFull(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("create full method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		song, err := data.DB.LoadSong(ctx, id)
		if err != nil {
			return utils.HTTPError(err)
		}
		if song == nil {
			return utils.HTTPError(fmt.Errorf("song '%s': %w", goapp.Sanitize(id), utils.ErrNotFound))
		}
		if !song.Paid {
			return utils.HTTPError(fmt.Errorf("song '%s': %w", id, utils.ErrNotPaid))
		}
		if song.HasFullAudio() {
			return c.JSON(http.StatusOK, api.ToSong(song))
		}
		if song.ClaimActive(data.Now(), data.ClaimTTL) {
			goapp.Log.Info().Str("ID", id).Msg("full generation in progress")
			return c.JSON(http.StatusAccepted, api.ToSong(song))
		}
		if err := data.MsgSender.SendMessage(ctx, messages.NewSongMessage(id, "user"), messages.Generate); err != nil {
			return utils.HTTPError(err)
		}
		goapp.Log.Info().Str("ID", id).Msg("full generation queued")
		return c.JSON(http.StatusAccepted, api.ToSong(song))
	}
}

func listCatalog(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, data.Catalog.All())
	}
}

func formValue(form *multipart.Form, name string) string {
	return takeFirst(form.Value[name], "")
}

func takeFirst[K interface{}](a []K, d K) K {
	if len(a) > 0 {
		return a[0]
	}
	return d
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func validateFormParams(form *multipart.Form) error {
	allowed := map[string]bool{api.PrmSongID: true, api.PrmUserID: true, api.PrmEmail: true}
	for k := range form.Value {
		if !allowed[k] {
			return errors.Errorf("unknown parameter '%s'", k)
		}
	}
	for k := range form.File {
		if k != api.PrmFile {
			return errors.Errorf("unexpected form file parameter '%s'", k)
		}
	}
	if len(form.File[api.PrmFile]) == 0 {
		return errors.New("no form file parameter 'file'")
	}
	if len(form.File[api.PrmFile]) > 1 {
		return errors.New("only one voice sample expected")
	}
	return nil
}

func readSample(form *multipart.Form, max int64) (string, []byte, error) {
	h := form.File[api.PrmFile][0]
	if h.Size > max {
		return "", nil, fmt.Errorf("voice sample too large: %w", utils.ErrInvalidInput)
	}
	f, err := h.Open()
	if err != nil {
		return "", nil, fmt.Errorf("can't open sample: %v: %w", err, utils.ErrInvalidInput)
	}
	defer f.Close()
	res, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return "", nil, fmt.Errorf("can't read sample: %w", err)
	}
	if int64(len(res)) > max {
		return "", nil, fmt.Errorf("voice sample too large: %w", utils.ErrInvalidInput)
	}
	return h.Filename, res, nil
}
