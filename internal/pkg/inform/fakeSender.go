package inform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// FakeEmailSender posts emails to a http endpoint instead of SMTP, used in dev environments
type FakeEmailSender struct {
	url        string
	httpClient *http.Client
}

type fakeEmail struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

// NewFakeEmailSender initiates email sender from smtp.fakeUrl
func NewFakeEmailSender(c *viper.Viper) (*FakeEmailSender, error) {
	url := c.GetString("smtp.fakeUrl")
	if url == "" {
		return nil, fmt.Errorf("no URL")
	}
	goapp.Log.Info().Str("URL", url).Msg("Fake sender")
	return &FakeEmailSender{url: url, httpClient: &http.Client{Timeout: 5 * time.Second}}, nil
}

// Send posts email as json
func (s *FakeEmailSender) Send(e *email.Email) error {
	body, err := json.Marshal(fakeEmail{To: e.To, Subject: e.Subject, Text: string(e.Text), HTML: string(e.HTML)})
	if err != nil {
		return err
	}
	ctx, cancelF := context.WithTimeout(context.Background(), time.Second*5)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	goapp.Log.Info().Str("url", req.URL.String()).Strs("to", e.To).Msg("call")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	return nil
}
