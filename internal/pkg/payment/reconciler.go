package payment

import (
	"context"
	"fmt"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jamjock/jamjock/internal/pkg/analytics"
	"github.com/jamjock/jamjock/internal/pkg/messages"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/stripe/api"
	"github.com/pkg/errors"
)

// EventParser verifies and decodes gateway callbacks
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*api.Event, error)
	CustomerUserID(ctx context.Context, customerID string) (string, error)
}

// ReconcileDB applies payment state to song records
type ReconcileDB interface {
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
	LoadSongByPaymentLink(ctx context.Context, linkID string) (*persistence.Song, error)
	MarkPaid(ctx context.Context, id, sessionID, userID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, id, reason string) (bool, error)
	AddEarnings(ctx context.Context, amount int64, currency string) error
	IsEventProcessed(ctx context.Context, id string) (bool, error)
	MarkEventProcessed(ctx context.Context, id, eventType string) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Reconciler applies verified payment events to songs
type Reconciler struct {
	parser    EventParser
	db        ReconcileDB
	msgSender MsgSender
	counter   analytics.Counter
}

// NewReconciler creates webhook reconciler
func NewReconciler(parser EventParser, db ReconcileDB, msgSender MsgSender, counter analytics.Counter) (*Reconciler, error) {
	if parser == nil {
		return nil, errors.New("no event parser")
	}
	if db == nil {
		return nil, errors.New("no DB")
	}
	if msgSender == nil {
		return nil, errors.New("no msg sender")
	}
	return &Reconciler{parser: parser, db: db, msgSender: msgSender, counter: counter}, nil
}

// Handle verifies the payload and applies the event once
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) error {
	e, err := r.parser.ParseEvent(payload, signature)
	if err != nil {
		return err
	}
	goapp.Log.Info().Str("event", e.ID).Str("type", e.Type).Str("kind", e.Kind.String()).
		Str("ID", e.SongID).Msg("webhook")
	if e.Kind == api.Ignored {
		return nil
	}
	done, err := r.db.IsEventProcessed(ctx, e.ID)
	if err != nil {
		return err
	}
	if done {
		goapp.Log.Info().Str("event", e.ID).Msg("already processed")
		return nil
	}
	song, err := r.findSong(ctx, e)
	if err != nil {
		return err
	}
	if song == nil {
		goapp.Log.Warn().Str("event", e.ID).Str("ID", goapp.Sanitize(e.SongID)).
			Str("link", e.PaymentLinkID).Msg("no song for event")
		return r.db.MarkEventProcessed(ctx, e.ID, e.Type)
	}
	switch e.Kind {
	case api.Paid:
		err = r.paid(ctx, e, song)
	case api.Failed:
		err = r.failed(ctx, e, song)
	}
	if err != nil {
		return err
	}
	return r.db.MarkEventProcessed(ctx, e.ID, e.Type)
}

func (r *Reconciler) findSong(ctx context.Context, e *api.Event) (*persistence.Song, error) {
	if e.SongID != "" {
		return r.db.LoadSong(ctx, e.SongID)
	}
	if e.PaymentLinkID != "" {
		return r.db.LoadSongByPaymentLink(ctx, e.PaymentLinkID)
	}
	return nil, nil
}

func (r *Reconciler) paid(ctx context.Context, e *api.Event, song *persistence.Song) error {
	userID := ""
	if e.CustomerID != "" {
		var err error
		if userID, err = r.parser.CustomerUserID(ctx, e.CustomerID); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", song.ID).Msg("can't resolve user")
		}
	}
	flipped, err := r.db.MarkPaid(ctx, song.ID, e.SessionID, userID)
	if err != nil {
		return err
	}
	goapp.Log.Info().Str("ID", song.ID).Bool("changed", flipped).Msg("marked paid")
	if flipped {
		analytics.Track(ctx, r.counter, analytics.PaymentSuccess)
		r.addEarnings(ctx, e)
	}
	if song.HasFullAudio() {
		return nil
	}
	if err := r.msgSender.SendMessage(ctx, messages.NewSongMessage(song.ID, e.Type), messages.Generate); err != nil {
		return fmt.Errorf("can't enqueue full generation: %w", err)
	}
	r.statusChanged(ctx, song.ID)
	return nil
}

// addEarnings never fails the event, the song is already paid
func (r *Reconciler) addEarnings(ctx context.Context, e *api.Event) {
	if e.Amount <= 0 || e.Currency == "" {
		goapp.Log.Warn().Str("event", e.ID).Msg("no amount in paid event")
		return
	}
	if err := r.db.AddEarnings(ctx, e.Amount, e.Currency); err != nil {
		goapp.Log.Error().Err(err).Str("event", e.ID).Int64("amount", e.Amount).Str("currency", e.Currency).
			Msg("can't add earnings")
	}
}

func (r *Reconciler) failed(ctx context.Context, e *api.Event, song *persistence.Song) error {
	changed, err := r.db.MarkPaymentFailed(ctx, song.ID, e.Reason)
	if err != nil {
		return err
	}
	goapp.Log.Info().Str("ID", song.ID).Bool("changed", changed).Str("reason", e.Reason).Msg("payment failed")
	if changed {
		r.statusChanged(ctx, song.ID)
	}
	return nil
}

func (r *Reconciler) statusChanged(ctx context.Context, id string) {
	if err := r.msgSender.SendMessage(ctx, messages.NewSongMessage(id, ""), messages.StatusChange); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't send status change")
	}
}
