package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jamjock/jamjock/internal/pkg/retry"
	"github.com/jamjock/jamjock/internal/pkg/utils"
)

const (
	service = "voice"
	// DefaultModel is a multilingual synthesis model
	DefaultModel = "eleven_multilingual_v2"
	// DefaultURL of the voice synthesis API
	DefaultURL = "https://api.elevenlabs.io/v1"
)

// Settings for the singing synthesis
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// SingingSettings are tuned for an expressive performance
var SingingSettings = Settings{Stability: 0.3, SimilarityBoost: 0.65, Style: 0.85, UseSpeakerBoost: true}

var cloneLabels = map[string]string{"type": "singing", "use_case": "performance", "style": "powerful",
	"emotion": "joyful", "quality": "high"}

// Client communicates with the voice cloning and synthesis service
type Client struct {
	httpclient   *http.Client
	url          string
	key          string
	model        string
	cloneTimeout time.Duration
	timeout      time.Duration
	policy       *retry.Policy
}

// Option configures client
type Option func(*Client)

// WithModel sets synthesis model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithPolicy sets retry policy
func WithPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout sets timeout of one call
func WithTimeout(t time.Duration) Option {
	return func(c *Client) {
		c.timeout = t
		c.cloneTimeout = t
	}
}

// NewClient creates voice client
func NewClient(urlStr, key string, opts ...Option) (*Client, error) {
	if urlStr == "" {
		return nil, fmt.Errorf("no url")
	}
	if key == "" {
		return nil, fmt.Errorf("no key")
	}
	res := &Client{url: strings.TrimSuffix(urlStr, "/"), key: key, model: DefaultModel,
		httpclient: &http.Client{Transport: newTransport()}, policy: retry.Default(),
		cloneTimeout: time.Minute * 2, timeout: time.Minute * 3}
	for _, o := range opts {
		o(res)
	}
	goapp.Log.Info().Str("url", res.url).Str("model", res.model).Int("attempts", res.policy.Attempts).
		Dur("delay", res.policy.Delay).Msg("voice client")
	return res, nil
}

type cloneResponse struct {
	VoiceID string `json:"voice_id"`
}

// Clone creates a voice from the sample and returns its ID
func (c *Client) Clone(ctx context.Context, name string, sample []byte, fileName string) (string, error) {
	defer goapp.Estimate("voice clone")()
	body, contentType, err := cloneBody(name, sample, fileName)
	if err != nil {
		return "", fmt.Errorf("can't prepare request: %w", err)
	}
	res, err := retry.Do(ctx, c.policy, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.cloneTimeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/voices/add", bytes.NewReader(body))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", contentType)
		var respData cloneResponse
		if retryable, err := c.call(req, func(r io.Reader) error { return json.NewDecoder(r).Decode(&respData) }); err != nil {
			return "", retryable, err
		}
		if respData.VoiceID == "" {
			return "", false, fmt.Errorf("no voice_id in response")
		}
		return respData.VoiceID, false, nil
	})
	if err != nil {
		return "", utils.NewErrUpstream(service, fmt.Errorf("can't clone: %w", err))
	}
	goapp.Log.Info().Str("voice", res).Msg("cloned")
	return res, nil
}

type synthesizeRequest struct {
	Text          string   `json:"text"`
	ModelID       string   `json:"model_id"`
	VoiceSettings Settings `json:"voice_settings"`
}

// Synthesize returns mp3 audio of the text sung by the voice
func (c *Client) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	defer goapp.Estimate("voice synthesize")()
	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.model, VoiceSettings: SingingSettings})
	if err != nil {
		return nil, fmt.Errorf("can't marshal: %w", err)
	}
	res, err := retry.Do(ctx, c.policy, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.url+"/text-to-speech/"+url.PathEscape(voiceID), bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		var res []byte
		if retryable, err := c.call(req, func(r io.Reader) error {
			var err error
			res, err = io.ReadAll(r)
			return err
		}); err != nil {
			return nil, retryable, err
		}
		if len(res) == 0 {
			return nil, true, fmt.Errorf("empty audio")
		}
		return res, false, nil
	})
	if err != nil {
		return nil, utils.NewErrUpstream(service, fmt.Errorf("can't synthesize: %w", err))
	}
	return res, nil
}

// Delete removes the cloned voice, called once
func (c *Client) Delete(ctx context.Context, voiceID string) error {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url+"/voices/"+url.PathEscape(voiceID), nil)
	if err != nil {
		return err
	}
	if _, err := c.call(req, nil); err != nil {
		return fmt.Errorf("can't delete voice: %w", err)
	}
	goapp.Log.Info().Str("voice", voiceID).Msg("deleted")
	return nil
}

// call returns retry flag and error
func (c *Client) call(req *http.Request, read func(io.Reader) error) (bool, error) {
	req.Header.Set("xi-api-key", c.key)
	goapp.Log.Debug().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return isRetryableCode(resp.StatusCode), fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	if read == nil {
		return false, nil
	}
	if err := read(resp.Body); err != nil {
		return goapp.IsRetryableErr(err), fmt.Errorf("can't read response: %w", err)
	}
	return false, nil
}

func isRetryableCode(c int) bool {
	return c == http.StatusTooManyRequests || c >= 500
}

func cloneBody(name string, sample []byte, fileName string) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("name", name); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("description", "Singing voice for "+name); err != nil {
		return nil, "", err
	}
	lb, err := json.Marshal(cloneLabels)
	if err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("labels", string(lb)); err != nil {
		return nil, "", err
	}
	part, err := writer.CreateFormFile("files", fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(sample); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 20
	res.MaxIdleConns = 10
	res.MaxIdleConnsPerHost = 10
	res.IdleConnTimeout = 90 * time.Second
	return res
}
