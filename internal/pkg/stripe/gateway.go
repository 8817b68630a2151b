package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jamjock/jamjock/internal/pkg/stripe/api"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	service = "stripe"
	// MetaSongID metadata key of the song reference
	MetaSongID = "songId"
	metaUserID = "user_id"
	// DefaultAmount of a song in cents
	DefaultAmount = 600
	// DefaultCurrency of payments
	DefaultCurrency = "usd"

	checkoutExpire = 30 * time.Minute
)

// Options for the gateway
type Options struct {
	Key           string
	WebhookSecret string
	SiteURL       string
	LinkPriceID   string
	Amount        int64
	Currency      string
	Backends      *stripe.Backends
}

// Gateway wraps stripe API
type Gateway struct {
	api           *client.API
	webhookSecret string
	siteURL       string
	linkPriceID   string
	amount        int64
	currency      string
	now           func() time.Time
}

// NewGateway creates stripe gateway
func NewGateway(opt Options) (*Gateway, error) {
	if opt.Key == "" {
		return nil, fmt.Errorf("no stripe key")
	}
	if opt.WebhookSecret == "" {
		return nil, fmt.Errorf("no webhook secret")
	}
	if opt.SiteURL == "" {
		return nil, fmt.Errorf("no site URL")
	}
	res := &Gateway{api: client.New(opt.Key, opt.Backends), webhookSecret: opt.WebhookSecret, siteURL: opt.SiteURL,
		linkPriceID: opt.LinkPriceID, amount: opt.Amount, currency: opt.Currency, now: time.Now}
	if res.amount <= 0 {
		res.amount = DefaultAmount
	}
	if res.currency == "" {
		res.currency = DefaultCurrency
	}
	goapp.Log.Info().Int64("amount", res.amount).Str("currency", res.currency).
		Bool("linkPrice", res.linkPriceID != "").Msg("stripe gateway")
	return res, nil
}

// CreateCheckout creates a checkout session and returns its URL
func (g *Gateway) CreateCheckout(ctx context.Context, songID, priceID string) (string, error) {
	success, err := g.pageURL("share/"+songID, url.Values{"success": {"true"}})
	if err != nil {
		return "", err
	}
	cancel, err := g.pageURL("share/"+songID, url.Values{"canceled": {"true"}})
	if err != nil {
		return "", err
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(success),
		CancelURL:         stripe.String(cancel),
		ClientReferenceID: stripe.String(songID),
		ExpiresAt:         stripe.Int64(g.now().Add(checkoutExpire).Unix()),
		Metadata:          map[string]string{MetaSongID: songID},
	}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", utils.NewErrUpstream(service, fmt.Errorf("can't create checkout: %w", err))
	}
	goapp.Log.Info().Str("ID", songID).Str("session", s.ID).Msg("checkout created")
	return s.URL, nil
}

// CreatePaymentLink creates fixed price payment link redirecting to the thank-you page
func (g *Gateway) CreatePaymentLink(ctx context.Context, songID string) (*api.PaymentLink, error) {
	if g.linkPriceID == "" {
		return nil, fmt.Errorf("no link price configured")
	}
	redirect, err := g.pageURL("thank-you", url.Values{"songId": {songID}})
	if err != nil {
		return nil, err
	}
	params := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(g.linkPriceID), Quantity: stripe.Int64(1)},
		},
		AfterCompletion: &stripe.PaymentLinkAfterCompletionParams{
			Type:     stripe.String(string(stripe.PaymentLinkAfterCompletionTypeRedirect)),
			Redirect: &stripe.PaymentLinkAfterCompletionRedirectParams{URL: stripe.String(redirect)},
		},
		Metadata: map[string]string{MetaSongID: songID},
	}
	params.Context = ctx
	l, err := g.api.PaymentLinks.New(params)
	if err != nil {
		return nil, utils.NewErrUpstream(service, fmt.Errorf("can't create payment link: %w", err))
	}
	goapp.Log.Info().Str("ID", songID).Str("link", l.ID).Msg("payment link created")
	return &api.PaymentLink{ID: l.ID, URL: l.URL}, nil
}

// CreatePaymentIntent creates in-page payment for the song
func (g *Gateway) CreatePaymentIntent(ctx context.Context, songID string) (*api.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(g.amount),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{MetaSongID: songID},
	}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, utils.NewErrUpstream(service, fmt.Errorf("can't create payment intent: %w", err))
	}
	goapp.Log.Info().Str("ID", songID).Str("intent", pi.ID).Msg("payment intent created")
	return &api.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: g.amount, Currency: g.currency}, nil
}

// CustomerUserID returns user ID stored in customer metadata
func (g *Gateway) CustomerUserID(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := g.api.Customers.Get(customerID, params)
	if err != nil {
		return "", utils.NewErrUpstream(service, fmt.Errorf("can't get customer: %w", err))
	}
	return c.Metadata[metaUserID], nil
}

// ParseEvent verifies the signature and maps stripe event to the payment outcome
func (g *Gateway) ParseEvent(payload []byte, signature string) (*api.Event, error) {
	e, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureErr(err) {
			return nil, fmt.Errorf("%v: %w", err, utils.ErrInvalidSignature)
		}
		return nil, fmt.Errorf("%v: %w", err, utils.ErrInvalidInput)
	}
	res := &api.Event{ID: e.ID, Type: string(e.Type)}
	switch e.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		if err := fillFromSession(res, e); err != nil {
			return nil, err
		}
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		if err := fillFromIntent(res, e); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func fillFromSession(res *api.Event, e stripe.Event) error {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(e.Data.Raw, &s); err != nil {
		return fmt.Errorf("can't decode session: %v: %w", err, utils.ErrInvalidInput)
	}
	res.SessionID = s.ID
	res.SongID = utils.FirstNonEmpty(s.ClientReferenceID, s.Metadata[MetaSongID])
	if s.PaymentLink != nil {
		res.PaymentLinkID = s.PaymentLink.ID
	}
	if s.Customer != nil {
		res.CustomerID = s.Customer.ID
	}
	res.Amount, res.Currency = s.AmountTotal, string(s.Currency)
	switch e.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			res.Kind = api.Paid
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		res.Kind = api.Paid
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		res.Kind, res.Reason = api.Failed, "async payment failed"
	case stripe.EventTypeCheckoutSessionExpired:
		res.Reason = "checkout expired"
	}
	return nil
}

func fillFromIntent(res *api.Event, e stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(e.Data.Raw, &pi); err != nil {
		return fmt.Errorf("can't decode payment intent: %v: %w", err, utils.ErrInvalidInput)
	}
	res.SessionID = pi.ID
	res.SongID = pi.Metadata[MetaSongID]
	if pi.Customer != nil {
		res.CustomerID = pi.Customer.ID
	}
	res.Amount, res.Currency = pi.Amount, string(pi.Currency)
	if e.Type == stripe.EventTypePaymentIntentSucceeded {
		res.Kind = api.Paid
		return nil
	}
	res.Kind, res.Reason = api.Failed, "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		res.Reason = pi.LastPaymentError.Msg
	}
	return nil
}

func isSignatureErr(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld)
}

func (g *Gateway) pageURL(p string, q url.Values) (string, error) {
	res, err := url.JoinPath(g.siteURL, p)
	if err != nil {
		return "", fmt.Errorf("can't make URL: %w", err)
	}
	return res + "?" + q.Encode(), nil
}
