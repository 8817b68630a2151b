package payment

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jamjock/jamjock/internal/pkg/analytics"
	"github.com/jamjock/jamjock/internal/pkg/messages"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/stripe/api"
	"github.com/jamjock/jamjock/internal/pkg/test"
	"github.com/jamjock/jamjock/internal/pkg/test/mocks"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	gatewayMock *mocks.Gateway
	rDBMock     *mocks.DB
	senderMock  *mocks.Sender
	rCounter    *mocks.Counter
)

func initReconcilerTest(t *testing.T, e *api.Event) *Reconciler {
	t.Helper()
	gatewayMock = &mocks.Gateway{}
	rDBMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	rCounter = &mocks.Counter{}
	res, err := NewReconciler(gatewayMock, rDBMock, senderMock, rCounter)
	require.Nil(t, err)
	gatewayMock.On("ParseEvent", mock.Anything, "sig").Return(e, nil)
	gatewayMock.On("CustomerUserID", mock.Anything, "cus_1").Return("u1", nil)
	rDBMock.On("IsEventProcessed", mock.Anything, mock.Anything).Return(false, nil)
	rDBMock.On("MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rDBMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1"}, nil)
	rDBMock.On("MarkPaid", mock.Anything, "1", mock.Anything, mock.Anything).Return(true, nil)
	rDBMock.On("MarkPaymentFailed", mock.Anything, "1", mock.Anything).Return(true, nil)
	rDBMock.On("AddEarnings", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rCounter.On("Increment", mock.Anything, mock.Anything).Return(nil)
	return res
}

func paidEvent() *api.Event {
	return &api.Event{ID: "evt_1", Type: "checkout.session.completed", Kind: api.Paid, SongID: "1",
		SessionID: "cs_1", CustomerID: "cus_1", Amount: 600, Currency: "usd"}
}

func TestNewReconciler_Fail(t *testing.T) {
	_, err := NewReconciler(nil, &mocks.DB{}, &mocks.Sender{}, nil)
	assert.NotNil(t, err)
	_, err = NewReconciler(&mocks.Gateway{}, nil, &mocks.Sender{}, nil)
	assert.NotNil(t, err)
	_, err = NewReconciler(&mocks.Gateway{}, &mocks.DB{}, nil, nil)
	assert.NotNil(t, err)
}

func TestHandle_Paid(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkPaid", mock.Anything, "1", "cs_1", "u1")
	rDBMock.AssertCalled(t, "MarkEventProcessed", mock.Anything, "evt_1", "checkout.session.completed")
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, messages.NewSongMessage("1", "checkout.session.completed"),
		messages.Generate)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, messages.NewSongMessage("1", ""), messages.StatusChange)
	rCounter.AssertCalled(t, "Increment", mock.Anything, analytics.PaymentSuccess)
	rDBMock.AssertCalled(t, "AddEarnings", mock.Anything, int64(600), "usd")
}

func TestHandle_PaidTwice(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	rDBMock.ExpectedCalls = nil
	rDBMock.On("IsEventProcessed", mock.Anything, mock.Anything).Return(false, nil)
	rDBMock.On("MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rDBMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1", Paid: true}, nil)
	rDBMock.On("MarkPaid", mock.Anything, "1", mock.Anything, mock.Anything).Return(false, nil)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rCounter.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything)
	rDBMock.AssertNotCalled(t, "AddEarnings", mock.Anything, mock.Anything, mock.Anything)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.Generate)
}

func TestHandle_EarningsFailIgnored(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	rDBMock.ExpectedCalls = nil
	rDBMock.On("IsEventProcessed", mock.Anything, mock.Anything).Return(false, nil)
	rDBMock.On("MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rDBMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1"}, nil)
	rDBMock.On("MarkPaid", mock.Anything, "1", mock.Anything, mock.Anything).Return(true, nil)
	rDBMock.On("AddEarnings", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("olia"))
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkEventProcessed", mock.Anything, "evt_1", mock.Anything)
}

func TestHandle_PaidNoAmount(t *testing.T) {
	e := paidEvent()
	e.Amount, e.Currency = 0, ""
	r := initReconcilerTest(t, e)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkPaid", mock.Anything, "1", "cs_1", "u1")
	rDBMock.AssertNotCalled(t, "AddEarnings", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_PaidWithFullAudio(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	rDBMock.ExpectedCalls = nil
	rDBMock.On("IsEventProcessed", mock.Anything, mock.Anything).Return(false, nil)
	rDBMock.On("MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rDBMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1", Paid: true,
		FullAudioKey: sql.NullString{String: "1/full.mp3", Valid: true}}, nil)
	rDBMock.On("MarkPaid", mock.Anything, "1", mock.Anything, mock.Anything).Return(false, nil)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_AlreadyProcessed(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	rDBMock.ExpectedCalls = nil
	rDBMock.On("IsEventProcessed", mock.Anything, "evt_1").Return(true, nil)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_Ignored(t *testing.T) {
	r := initReconcilerTest(t, &api.Event{ID: "evt_1", Type: "customer.created", Kind: api.Ignored})
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertNotCalled(t, "IsEventProcessed", mock.Anything, mock.Anything)
	rDBMock.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_CheckoutExpired(t *testing.T) {
	r := initReconcilerTest(t, &api.Event{ID: "evt_3", Type: "checkout.session.expired", Kind: api.Ignored,
		SongID: "1", SessionID: "cs_1", Reason: "checkout expired"})
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertNotCalled(t, "MarkPaymentFailed", mock.Anything, mock.Anything, mock.Anything)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_InvalidSignature(t *testing.T) {
	r := initReconcilerTest(t, nil)
	gatewayMock.ExpectedCalls = nil
	gatewayMock.On("ParseEvent", mock.Anything, "sig").Return(nil, fmt.Errorf("bad: %w", utils.ErrInvalidSignature))
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	assert.True(t, errors.Is(err, utils.ErrInvalidSignature))
	rDBMock.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_UnknownSong(t *testing.T) {
	e := paidEvent()
	e.SongID = "2"
	r := initReconcilerTest(t, e)
	rDBMock.On("LoadSong", mock.Anything, "2").Return(nil, nil)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkEventProcessed", mock.Anything, "evt_1", mock.Anything)
	rDBMock.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_ByPaymentLink(t *testing.T) {
	e := paidEvent()
	e.SongID = ""
	e.PaymentLinkID = "plink_1"
	r := initReconcilerTest(t, e)
	rDBMock.On("LoadSongByPaymentLink", mock.Anything, "plink_1").Return(&persistence.Song{ID: "1"}, nil)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkPaid", mock.Anything, "1", "cs_1", "u1")
}

func TestHandle_CustomerFailIgnored(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	gatewayMock.ExpectedCalls = nil
	gatewayMock.On("ParseEvent", mock.Anything, "sig").Return(paidEvent(), nil)
	gatewayMock.On("CustomerUserID", mock.Anything, "cus_1").Return("", fmt.Errorf("olia"))
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkPaid", mock.Anything, "1", "cs_1", "")
}

func TestHandle_EnqueueFails(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	senderMock.ExpectedCalls = nil
	senderMock.On("SendMessage", mock.Anything, mock.Anything, messages.Generate).Return(fmt.Errorf("olia"))
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	assert.NotNil(t, err)
	rDBMock.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_MarkPaidFails(t *testing.T) {
	r := initReconcilerTest(t, paidEvent())
	rDBMock.ExpectedCalls = nil
	rDBMock.On("IsEventProcessed", mock.Anything, mock.Anything).Return(false, nil)
	rDBMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1"}, nil)
	rDBMock.On("MarkPaid", mock.Anything, "1", mock.Anything, mock.Anything).Return(false, fmt.Errorf("olia"))
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	assert.NotNil(t, err)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_Failed(t *testing.T) {
	r := initReconcilerTest(t, &api.Event{ID: "evt_2", Type: "payment_intent.payment_failed", Kind: api.Failed,
		SongID: "1", Reason: "card declined"})
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	rDBMock.AssertCalled(t, "MarkPaymentFailed", mock.Anything, "1", "card declined")
	rDBMock.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.StatusChange)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, messages.Generate)
	rDBMock.AssertCalled(t, "MarkEventProcessed", mock.Anything, "evt_2", mock.Anything)
}

func TestHandle_FailedAfterPaid(t *testing.T) {
	r := initReconcilerTest(t, &api.Event{ID: "evt_2", Type: "checkout.session.async_payment_failed", Kind: api.Failed, SongID: "1"})
	rDBMock.ExpectedCalls = nil
	rDBMock.On("IsEventProcessed", mock.Anything, mock.Anything).Return(false, nil)
	rDBMock.On("MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rDBMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1", Paid: true}, nil)
	rDBMock.On("MarkPaymentFailed", mock.Anything, "1", mock.Anything).Return(false, nil)
	err := r.Handle(test.Ctx(t), []byte("{}"), "sig")
	require.Nil(t, err)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}
