package statusservice

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/test"
	"github.com/jamjock/jamjock/internal/pkg/test/mocks"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	wsHandlerMock *mockWSConnHandler
	dbMock        *mocks.DB
	tData         *Data
	tEcho         *echo.Echo
)

func initTest(t *testing.T) {
	t.Helper()
	wsHandlerMock = &mockWSConnHandler{}
	dbMock = &mocks.DB{}
	tData = &Data{DB: dbMock, WSHandler: wsHandlerMock}
	tEcho = initRoutes(tData)
	dbMock.On("LoadSong", mock.Anything, "1").Return(&persistence.Song{ID: "1", TemplateID: "sweet-caroline",
		Title: "Sweet Caroline", Status: "completed", Paid: true,
		FullAudioKey: sql.NullString{String: "1/full.mp3", Valid: true},
		ShareURL:     sql.NullString{String: "https://jamjock.app/song/1", Valid: true}}, nil)
	dbMock.On("LoadSong", mock.Anything, "2").Return(nil, nil)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/status/1", nil)
	test.Code(t, tEcho, req, http.StatusMethodNotAllowed)
}

func Test_Status_Returns(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/status/1", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[result](t, resp.Result())
	assert.Equal(t, "1", res.ID)
	assert.Equal(t, "completed", res.Status)
	assert.True(t, res.FullReady)
	assert.Equal(t, "https://jamjock.app/song/1", res.ShareURL)
	assert.Equal(t, "", res.Error)
}

func Test_Status_NotFound(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/status/2", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Status_Fail(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadSong", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))
	req := httptest.NewRequest(http.MethodGet, "/status/1", nil)
	resp := test.Code(t, tEcho, req, http.StatusInternalServerError)
	assert.NotContains(t, test.RStr(t, resp.Body), "olia")
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, http.StatusOK)
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{DB: dbMock, WSHandler: wsHandlerMock}, wantErr: false},
		{name: "Fail Handler", data: &Data{DB: dbMock}, wantErr: true},
		{name: "Fail DB", data: &Data{WSHandler: wsHandlerMock}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockWSConnHandler struct{ mock.Mock }

func (m *mockWSConnHandler) HandleConnection(wc WsConn) error {
	args := m.Called(wc)
	return args.Error(0)
}

func (m *mockWSConnHandler) GetConnections(id string) ([]WsConn, bool) {
	args := m.Called(id)
	return mocks.To[[]WsConn](args.Get(0)), args.Bool(1)
}
