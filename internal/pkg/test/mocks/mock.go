package mocks

import (
	"context"
	"io"
	"time"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/stripe/api"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

// SaveFile func mock
func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	args := m.Called(ctx, name, r, size)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

func (m *Filer) Delete(ctx context.Context, fileName string) error {
	args := m.Called(ctx, fileName)
	return args.Error(0)
}

func (m *Filer) SignedURL(ctx context.Context, fileName string) (string, error) {
	args := m.Called(ctx, fileName)
	return args.String(0), args.Error(1)
}

func (m *Filer) Clean(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertSong(ctx context.Context, s *persistence.Song) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *DB) LoadSong(ctx context.Context, id string) (*persistence.Song, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Song](args.Get(0)), args.Error(1)
}

func (m *DB) LoadSongByPaymentLink(ctx context.Context, linkID string) (*persistence.Song, error) {
	args := m.Called(ctx, linkID)
	return To[*persistence.Song](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateSong(ctx context.Context, s *persistence.Song) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *DB) ClaimSong(ctx context.Context, s *persistence.Song, staleBefore time.Time) error {
	args := m.Called(ctx, s, staleBefore)
	return args.Error(0)
}

func (m *DB) AddEarnings(ctx context.Context, amount int64, currency string) error {
	args := m.Called(ctx, amount, currency)
	return args.Error(0)
}

func (m *DB) LoadEarnings(ctx context.Context, from time.Time) ([]*persistence.Earning, error) {
	args := m.Called(ctx, from)
	return To[[]*persistence.Earning](args.Get(0)), args.Error(1)
}

func (m *DB) MarkPaid(ctx context.Context, id, sessionID, userID string) (bool, error) {
	args := m.Called(ctx, id, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *DB) MarkPaymentFailed(ctx context.Context, id, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *DB) SetPaymentLink(ctx context.Context, id, linkID string) error {
	args := m.Called(ctx, id, linkID)
	return args.Error(0)
}

func (m *DB) InsertTransaction(ctx context.Context, t *persistence.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *DB) IsEventProcessed(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *DB) MarkEventProcessed(ctx context.Context, id, eventType string) error {
	args := m.Called(ctx, id, eventType)
	return args.Error(0)
}

func (m *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value int) error {
	args := m.Called(ctx, id, msgType, value)
	return args.Error(0)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Counter is analytics counter mock
type Counter struct{ mock.Mock }

func (m *Counter) Increment(ctx context.Context, metric string) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Voice is voice synthesis client mock
type Voice struct{ mock.Mock }

func (m *Voice) Clone(ctx context.Context, name string, sample []byte, fileName string) (string, error) {
	args := m.Called(ctx, name, sample, fileName)
	return args.String(0), args.Error(1)
}

func (m *Voice) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	args := m.Called(ctx, voiceID, text)
	return To[[]byte](args.Get(0)), args.Error(1)
}

func (m *Voice) Delete(ctx context.Context, voiceID string) error {
	args := m.Called(ctx, voiceID)
	return args.Error(0)
}

// Gateway is stripe gateway mock
type Gateway struct{ mock.Mock }

func (m *Gateway) CreateCheckout(ctx context.Context, songID, priceID string) (string, error) {
	args := m.Called(ctx, songID, priceID)
	return args.String(0), args.Error(1)
}

func (m *Gateway) CreatePaymentLink(ctx context.Context, songID string) (*api.PaymentLink, error) {
	args := m.Called(ctx, songID)
	return To[*api.PaymentLink](args.Get(0)), args.Error(1)
}

func (m *Gateway) CreatePaymentIntent(ctx context.Context, songID string) (*api.PaymentIntent, error) {
	args := m.Called(ctx, songID)
	return To[*api.PaymentIntent](args.Get(0)), args.Error(1)
}

func (m *Gateway) CustomerUserID(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *Gateway) ParseEvent(payload []byte, signature string) (*api.Event, error) {
	args := m.Called(payload, signature)
	return To[*api.Event](args.Get(0)), args.Error(1)
}

// Webhook is webhook handler mock
type Webhook struct{ mock.Mock }

func (m *Webhook) Handle(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}

// Cleaner is cleaner mock
type Cleaner struct{ mock.Mock }

func (m *Cleaner) Clean(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// To converts mock value, nil is returned as zero value
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
