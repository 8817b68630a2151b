package payment

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/jamjock/jamjock/internal/pkg/analytics"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/stripe/api"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
)

const (
	maxWebhookBody  = 64 * 1024
	signatureHeader = "Stripe-Signature"
	defaultDays     = 30
	maxDays         = 366
)

// Gateway creates payments
type Gateway interface {
	CreateCheckout(ctx context.Context, songID, priceID string) (string, error)
	CreatePaymentLink(ctx context.Context, songID string) (*api.PaymentLink, error)
	CreatePaymentIntent(ctx context.Context, songID string) (*api.PaymentIntent, error)
}

// WebhookHandler applies gateway callbacks
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

// DB keeps payment references
type DB interface {
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
	SetPaymentLink(ctx context.Context, id, linkID string) error
	InsertTransaction(ctx context.Context, t *persistence.Transaction) error
	LoadEarnings(ctx context.Context, from time.Time) ([]*persistence.Earning, error)
	Live(ctx context.Context) error
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Gateway   Gateway
	Webhook   WebhookHandler
	DB        DB
	Counter   analytics.Counter
	NewID     func() string
	Now       func() time.Time
	// ReportKey enables GET /earnings for requests with the bearer key
	ReportKey string
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP JamJock payment service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 20 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Gateway == nil {
		return errors.New("no gateway")
	}
	if data.Webhook == nil {
		return errors.New("no webhook handler")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.Counter == nil {
		return errors.New("no counter")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("jamjock_payment", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	if data.NewID == nil {
		data.NewID = func() string { return uuid.New().String() }
	}
	if data.Now == nil {
		data.Now = time.Now
	}

	e.POST("/checkout", checkout(data))
	e.POST("/payment-link", paymentLink(data))
	e.POST("/payment-intent", paymentIntent(data))
	e.POST("/webhook", webhook(data))
	e.POST("/track/payment-attempt", trackAttempt(data))
	e.GET("/live", live(data))
	if data.ReportKey != "" {
		e.GET("/earnings", earnings(data), middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(data.ReportKey)) == 1, nil
		}))
	}

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Msg("live")
			return c.JSONBlob(http.StatusServiceUnavailable, []byte(`{"service":"OK","db":"FAIL"}`))
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK","db":"OK"}`))
	}
}

type songInput struct {
	SongID  string `json:"songId"`
	PriceID string `json:"priceId,omitempty"`
}

type checkoutResult struct {
	SessionURL string `json:"session_url"`
}

type linkResult struct {
	URL string `json:"url"`
}

type intentResult struct {
	ClientSecret string `json:"clientSecret"`
}

func checkout(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("checkout method")()
		ctx := c.Request().Context()
		in, err := takeInput(c)
		if err != nil {
			return utils.HTTPError(err)
		}
		if in.PriceID == "" {
			return utils.HTTPError(fmt.Errorf("no priceId: %w", utils.ErrInvalidInput))
		}
		if _, err := loadUnpaid(ctx, data.DB, in.SongID); err != nil {
			return utils.HTTPError(err)
		}
		res, err := data.Gateway.CreateCheckout(ctx, in.SongID, in.PriceID)
		if err != nil {
			return utils.HTTPError(err)
		}
		return c.JSON(http.StatusOK, checkoutResult{SessionURL: res})
	}
}

func paymentLink(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("payment link method")()
		ctx := c.Request().Context()
		in, err := takeInput(c)
		if err != nil {
			return utils.HTTPError(err)
		}
		if _, err := loadUnpaid(ctx, data.DB, in.SongID); err != nil {
			return utils.HTTPError(err)
		}
		res, err := data.Gateway.CreatePaymentLink(ctx, in.SongID)
		if err != nil {
			return utils.HTTPError(err)
		}
		if err := data.DB.SetPaymentLink(ctx, in.SongID, res.ID); err != nil {
			return utils.HTTPError(err)
		}
		analytics.Track(ctx, data.Counter, analytics.PaymentAttempts)
		return c.JSON(http.StatusOK, linkResult{URL: res.URL})
	}
}

func paymentIntent(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("payment intent method")()
		ctx := c.Request().Context()
		in, err := takeInput(c)
		if err != nil {
			return utils.HTTPError(err)
		}
		if _, err := loadUnpaid(ctx, data.DB, in.SongID); err != nil {
			return utils.HTTPError(err)
		}
		res, err := data.Gateway.CreatePaymentIntent(ctx, in.SongID)
		if err != nil {
			return utils.HTTPError(err)
		}
		if err := data.DB.InsertTransaction(ctx, &persistence.Transaction{ID: data.NewID(), SongID: in.SongID,
			Amount: res.Amount, Currency: res.Currency, PaymentIntentID: res.ID, Created: time.Now()}); err != nil {
			return utils.HTTPError(err)
		}
		analytics.Track(ctx, data.Counter, analytics.PaymentAttempts)
		return c.JSON(http.StatusOK, intentResult{ClientSecret: res.ClientSecret})
	}
}

type webhookResult struct {
	Received bool `json:"received"`
}

func webhook(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("webhook method")()
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
		if err != nil {
			return utils.HTTPError(fmt.Errorf("can't read body: %v: %w", err, utils.ErrInvalidInput))
		}
		if len(body) > maxWebhookBody {
			return utils.HTTPError(fmt.Errorf("body too large: %w", utils.ErrInvalidInput))
		}
		if err := data.Webhook.Handle(c.Request().Context(), body, c.Request().Header.Get(signatureHeader)); err != nil {
			return utils.HTTPError(err)
		}
		return c.JSON(http.StatusOK, webhookResult{Received: true})
	}
}

type trackResult struct {
	Success bool `json:"success"`
}

func trackAttempt(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		var in songInput
		if err := c.Bind(&in); err != nil {
			goapp.Log.Warn().Err(err).Msg("can't decode track input")
		}
		goapp.Log.Info().Str("ID", goapp.Sanitize(in.SongID)).Msg("payment attempt")
		if err := data.Counter.Increment(c.Request().Context(), analytics.PaymentAttempts); err != nil {
			return utils.HTTPError(err)
		}
		return c.JSON(http.StatusOK, trackResult{Success: true})
	}
}

type earningResult struct {
	Day      string `json:"day"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Count    int64  `json:"count"`
}

type earningsResult struct {
	Earnings []earningResult `json:"earnings"`
}

func earnings(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		days := defaultDays
		if v := c.QueryParam("days"); v != "" {
			var err error
			if days, err = strconv.Atoi(v); err != nil || days < 1 || days > maxDays {
				return utils.HTTPError(fmt.Errorf("wrong days '%s': %w", goapp.Sanitize(v), utils.ErrInvalidInput))
			}
		}
		from := data.Now().UTC().AddDate(0, 0, 1-days)
		list, err := data.DB.LoadEarnings(c.Request().Context(), from)
		if err != nil {
			return utils.HTTPError(err)
		}
		res := earningsResult{Earnings: make([]earningResult, 0, len(list))}
		for _, e := range list {
			res.Earnings = append(res.Earnings, earningResult{Day: e.Day.Format("2006-01-02"), Currency: e.Currency,
				Amount: e.Amount, Count: e.Count})
		}
		return c.JSON(http.StatusOK, res)
	}
}

func takeInput(c echo.Context) (*songInput, error) {
	var res songInput
	if err := c.Bind(&res); err != nil {
		return nil, fmt.Errorf("can't decode input: %v: %w", err, utils.ErrInvalidInput)
	}
	if res.SongID == "" {
		return nil, fmt.Errorf("no songId: %w", utils.ErrInvalidInput)
	}
	return &res, nil
}

func loadUnpaid(ctx context.Context, db DB, id string) (*persistence.Song, error) {
	res, err := db.LoadSong(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("song '%s': %w", goapp.Sanitize(id), utils.ErrNotFound)
	}
	if res.Paid {
		return nil, fmt.Errorf("song '%s' is already paid: %w", id, utils.ErrInvalidInput)
	}
	return res, nil
}
