//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jamjock/jamjock/internal/pkg/api"
	"github.com/jamjock/jamjock/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	createURL  string
	statusURL  string
	shareURL   string
	paymentURL string
	cleanURL   string
	dbURL      string
	httpclient *http.Client
}

var cfg config

func TestMain(m *testing.M) {
	cfg.createURL = GetEnvOrFail("CREATE_URL")
	cfg.statusURL = GetEnvOrFail("STATUS_URL")
	cfg.shareURL = GetEnvOrFail("SHARE_URL")
	cfg.paymentURL = GetEnvOrFail("PAYMENT_URL")
	cfg.cleanURL = GetEnvOrFail("CLEAN_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	for _, u := range []string{cfg.createURL, cfg.statusURL, cfg.shareURL, cfg.paymentURL, cfg.cleanURL} {
		WaitForOpenOrFail(tCtx, u)
	}
	waitForDB(tCtx, cfg.dbURL)

	// voice synthesis API is external, compose points voice.url here
	l, ts := startMockVoice(9876)
	defer ts.Close()
	defer l.Close()

	os.Exit(m.Run())
}

func TestLive(t *testing.T) {
	t.Parallel()
	for _, u := range []string{cfg.createURL, cfg.statusURL, cfg.shareURL, cfg.paymentURL, cfg.cleanURL} {
		test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, u, "/live", nil)), http.StatusOK)
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()
	resp := test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.createURL, "/catalog", nil))
	test.CheckCode(t, resp, http.StatusOK)
	res := test.Decode[[]map[string]interface{}](t, resp)
	assert.NotEmpty(t, res)
}

func TestCreate_Fail_NoFile(t *testing.T) {
	t.Parallel()
	req := newCreateRequest(t, "", [][2]string{{"songId", "sweet-caroline"}})
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusBadRequest)
}

func TestCreate_Fail_UnknownSong(t *testing.T) {
	t.Parallel()
	req := newCreateRequest(t, "voice.wav", [][2]string{{"songId", "no-such-song"}})
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusBadRequest)
}

func TestStatus_None(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/status/10", nil)),
		http.StatusNotFound)
}

func TestWebhook_Fail_Signature(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.paymentURL, "/webhook", map[string]string{"id": "evt_1"})
	req.Header.Set("Stripe-Signature", "t=1,v1=olia")
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusBadRequest)
}

func TestPreviewFlow(t *testing.T) {
	t.Parallel()
	song := createPreview(t)
	assert.Equal(t, "completed", song.Status)
	assert.False(t, song.Paid)
	assert.NotEmpty(t, song.PreviewURL)

	resp := test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/status/"+song.ID, nil))
	test.CheckCode(t, resp, http.StatusOK)
	st := test.Decode[api.Song](t, resp)
	assert.Equal(t, "completed", st.Status)

	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.shareURL, "/audio/"+song.ID+"/preview", nil))
	test.CheckCode(t, resp, http.StatusOK)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))

	// unpaid
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.shareURL, "/token",
		map[string]string{"songId": song.ID})), http.StatusForbidden)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.createURL,
		"/songs/"+song.ID+"/full", nil)), http.StatusForbidden)
}

func TestClean(t *testing.T) {
	t.Parallel()
	song := createPreview(t)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodDelete, cfg.cleanURL, "/delete/"+song.ID, nil)),
		http.StatusOK)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/status/"+song.ID, nil)),
		http.StatusNotFound)
}

func createPreview(t *testing.T) api.Song {
	t.Helper()
	req := newCreateRequest(t, "voice.wav", [][2]string{{"songId", "sweet-caroline"}, {"email", "olia@o.o"}})
	resp := test.Invoke(t, cfg.httpclient, req)
	test.CheckCode(t, resp, http.StatusOK)
	res := test.Decode[api.Song](t, resp)
	require.NotEmpty(t, res.ID)
	return res
}

func newCreateRequest(t *testing.T, file string, params [][2]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if file != "" {
		part, _ := writer.CreateFormFile("file", file)
		_, _ = io.Copy(part, strings.NewReader("RIFF fake wave data"))
	}
	for _, p := range params {
		_ = writer.WriteField(p[0], p[1])
	}
	require.Nil(t, writer.Close())
	req, err := http.NewRequest(http.MethodPost, cfg.createURL+"/songs", body)
	require.Nil(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func startMockVoice(port int) (net.Listener, *httptest.Server) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("can't start mock service: %v", err)
	}
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/voices/add":
			_, _ = io.Copy(w, strings.NewReader(`{"voice_id":"v1"}`))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/text-to-speech/"):
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = io.Copy(w, strings.NewReader("ID3 fake mp3"))
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/voices/"):
			_, _ = io.Copy(w, strings.NewReader(`{"status":"ok"}`))
		default:
			log.Printf("Unknown request to: %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ts.Listener.Close()
	ts.Listener = l

	ts.Start()
	log.Printf("started mock srv on port: %d", port)
	return l, ts
}
