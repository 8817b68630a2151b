package share

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/test"
	"github.com/jamjock/jamjock/internal/pkg/test/mocks"
	"github.com/jamjock/jamjock/internal/pkg/token"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type issuerMock struct{ mock.Mock }

func (m *issuerMock) Issue(ctx context.Context, songID string) (*token.Issued, error) {
	args := m.Called(ctx, songID)
	return mocks.To[*token.Issued](args.Get(0)), args.Error(1)
}

func (m *issuerMock) Verify(ctx context.Context, tokenStr, songID string) (*persistence.Song, error) {
	args := m.Called(ctx, tokenStr, songID)
	return mocks.To[*persistence.Song](args.Get(0)), args.Error(1)
}

type testFile struct {
	*strings.Reader
}

func (f *testFile) Close() error { return nil }

var (
	issMock   *issuerMock
	filerMock *mocks.Filer
	dbMock    *mocks.DB
	tData     *Data
	tEcho     *echo.Echo
)

func paidSong() *persistence.Song {
	return &persistence.Song{ID: "1", Paid: true, Status: "completed",
		PreviewKey:   sql.NullString{String: "1/preview.mp3", Valid: true},
		FullAudioKey: sql.NullString{String: "1/full.mp3", Valid: true},
		ShareURL:     sql.NullString{String: "https://jamjock.app/song/1", Valid: true}}
}

func initTest(t *testing.T) {
	t.Helper()
	issMock = &issuerMock{}
	filerMock = &mocks.Filer{}
	dbMock = &mocks.DB{}
	tData = &Data{Issuer: issMock, Filer: filerMock, DB: dbMock}
	tEcho = initRoutes(tData)

	issMock.On("Issue", mock.Anything, "1").Return(&token.Issued{Token: "tkn", ShareURL: "https://jamjock.app/song/1?token=tkn",
		Expires: time.Date(2023, 5, 2, 10, 0, 0, 0, time.UTC)}, nil)
	issMock.On("Verify", mock.Anything, "tkn", "1").Return(paidSong(), nil)
	dbMock.On("LoadSong", mock.Anything, "1").Return(paidSong(), nil)
	dbMock.On("LoadSong", mock.Anything, "3").Return(nil, nil)
	filerMock.On("SignedURL", mock.Anything, "1/preview.mp3").Return("https://s3/preview?sig", nil)
	filerMock.On("SignedURL", mock.Anything, "1/full.mp3").Return("https://s3/full?sig", nil)
	filerMock.On("LoadFile", mock.Anything, "1/preview.mp3").Return(&testFile{strings.NewReader("preview")}, nil)
	filerMock.On("LoadFile", mock.Anything, "1/full.mp3").Return(&testFile{strings.NewReader("full")}, nil)
}

func TestValidate(t *testing.T) {
	initTest(t)
	assert.Nil(t, validate(tData))
	assert.NotNil(t, validate(&Data{Filer: filerMock, DB: dbMock}))
	assert.NotNil(t, validate(&Data{Issuer: issMock, DB: dbMock}))
	assert.NotNil(t, validate(&Data{Issuer: issMock, Filer: filerMock}))
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/songs/1/preview", nil)
	test.Code(t, tEcho, req, http.StatusMethodNotAllowed)
}

func TestIssue(t *testing.T) {
	initTest(t)
	resp := test.Code(t, tEcho, test.PostJSON("/token", `{"songId":"1"}`), http.StatusOK)
	assert.Equal(t, `{"token":"tkn","shareUrl":"https://jamjock.app/song/1?token=tkn","expiresAt":"2023-05-02T10:00:00Z"}`,
		strings.TrimSpace(test.RStr(t, resp.Body)))
}

func TestIssue_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "not found", err: fmt.Errorf("olia: %w", utils.ErrNotFound), code: http.StatusNotFound},
		{name: "not paid", err: fmt.Errorf("olia: %w", utils.ErrNotPaid), code: http.StatusForbidden},
		{name: "input", err: fmt.Errorf("olia: %w", utils.ErrInvalidInput), code: http.StatusBadRequest},
		{name: "db", err: fmt.Errorf("olia"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			issMock.ExpectedCalls = nil
			issMock.On("Issue", mock.Anything, "1").Return(nil, tt.err)
			test.Code(t, tEcho, test.PostJSON("/token", `{"songId":"1"}`), tt.code)
		})
	}
}

func TestIssue_BadBody(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, test.PostJSON("/token", `{"songId":`), http.StatusBadRequest)
}

func TestVerify(t *testing.T) {
	initTest(t)
	resp := test.Code(t, tEcho, test.PostJSON("/token/verify", `{"songId":"1","token":"tkn"}`), http.StatusOK)
	body := test.RStr(t, resp.Body)
	assert.Contains(t, body, `"valid":true`)
	assert.Contains(t, body, `"shareUrl":"https://jamjock.app/song/1"`)
	assert.NotContains(t, body, "full.mp3")
}

func TestVerify_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "expired", err: fmt.Errorf("olia: %w", utils.ErrExpired), code: http.StatusUnauthorized},
		{name: "invalid", err: fmt.Errorf("olia: %w", utils.ErrInvalidToken), code: http.StatusUnauthorized},
		{name: "mismatch", err: fmt.Errorf("olia: %w", utils.ErrMismatch), code: http.StatusForbidden},
		{name: "unpaid", err: fmt.Errorf("olia: %w", utils.ErrNotPaid), code: http.StatusForbidden},
		{name: "deleted", err: fmt.Errorf("olia: %w", utils.ErrNotFound), code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			issMock.ExpectedCalls = nil
			issMock.On("Verify", mock.Anything, "tkn", "1").Return(nil, tt.err)
			test.Code(t, tEcho, test.PostJSON("/token/verify", `{"songId":"1","token":"tkn"}`), tt.code)
		})
	}
}

func TestVerify_NoToken(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, test.PostJSON("/token/verify", `{"songId":"1"}`), http.StatusBadRequest)
	issMock.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPreviewURL(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/songs/1/preview", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, `{"url":"https://s3/preview?sig"}`, strings.TrimSpace(test.RStr(t, resp.Body)))
	issMock.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPreviewURL_NotFound(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/songs/3/preview", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestFullURL(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/songs/1/full?token=tkn", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, `{"url":"https://s3/full?sig"}`, strings.TrimSpace(test.RStr(t, resp.Body)))
}

func TestFullURL_NoToken(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/songs/1/full", nil)
	test.Code(t, tEcho, req, http.StatusUnauthorized)
	filerMock.AssertNotCalled(t, "SignedURL", mock.Anything, mock.Anything)
}

func TestFullURL_NotReady(t *testing.T) {
	initTest(t)
	song := paidSong()
	song.FullAudioKey = sql.NullString{}
	issMock.ExpectedCalls = nil
	issMock.On("Verify", mock.Anything, "tkn", "1").Return(song, nil)
	req := httptest.NewRequest(http.MethodGet, "/songs/1/full?token=tkn", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestFullURL_Unpaid(t *testing.T) {
	initTest(t)
	issMock.ExpectedCalls = nil
	issMock.On("Verify", mock.Anything, "tkn", "1").Return(nil, fmt.Errorf("olia: %w", utils.ErrNotPaid))
	req := httptest.NewRequest(http.MethodGet, "/songs/1/full?token=tkn", nil)
	test.Code(t, tEcho, req, http.StatusForbidden)
}

func TestPreviewAudio(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/audio/1/preview", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, "preview", test.RStr(t, resp.Body))
	assert.Equal(t, "audio/mpeg", resp.Header().Get(echo.HeaderContentType))
}

func TestFullAudio(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/audio/1/full?token=tkn", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, "full", test.RStr(t, resp.Body))
}

func TestFullAudio_Range(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/audio/1/full?token=tkn", nil)
	req.Header.Set("Range", "bytes=1-2")
	resp := test.Code(t, tEcho, req, http.StatusPartialContent)
	assert.Equal(t, "ul", test.RStr(t, resp.Body))
}

func TestAudio_NoFile(t *testing.T) {
	initTest(t)
	filerMock.ExpectedCalls = nil
	filerMock.On("LoadFile", mock.Anything, "1/preview.mp3").Return(nil, minio.ErrorResponse{StatusCode: http.StatusNotFound})
	req := httptest.NewRequest(http.MethodGet, "/audio/1/preview", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestAudio_LoadFail(t *testing.T) {
	initTest(t)
	filerMock.ExpectedCalls = nil
	filerMock.On("LoadFile", mock.Anything, "1/preview.mp3").Return(nil, io.ErrUnexpectedEOF)
	req := httptest.NewRequest(http.MethodGet, "/audio/1/preview", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}
