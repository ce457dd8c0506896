// Package httpapi is the client for a remote Rhasspy-style HTTP server. The
// remote server offers one endpoint per pipeline stage; domains configured
// with the http option call through this client.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/perchlabs/perch/internal/config"
)

// Default endpoint paths, relative to the configured base URL. Each can be
// overridden individually in configuration.
const (
	defaultSpeechToText      = "/api/speech-to-text"
	defaultIntentRecognition = "/api/text-to-intent"
	defaultIntentHandling    = "/api/intent"
	defaultTextToSpeech      = "/api/text-to-speech"
	defaultPlayWav           = "/api/play-wav"
)

// ConnError marks transport-level failures (dial, timeout) as opposed to the
// server answering with a non-2xx status. Domains map it to their error
// variants; callers that care use errors.As.
type ConnError struct {
	Endpoint string
	Err      error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("httpapi: %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// RecognizedIntent is the server's answer to an intent recognition request.
type RecognizedIntent struct {
	Name  string
	Slots map[string]string

	// Raw is the unmodified response body, forwarded verbatim to intent
	// handling so slot structures the satellite does not model survive.
	Raw []byte
}

// Client talks to one remote Rhasspy-style server.
type Client struct {
	httpClient *http.Client
	baseURL    string

	speechToText      string
	intentRecognition string
	intentHandling    string
	textToSpeech      string
	playWav           string
}

// NewClient builds a client from configuration. Endpoint overrides may be
// absolute URLs (pointing at a different host) or paths under the base URL.
func NewClient(cfg config.HTTPConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		httpClient:        &http.Client{Timeout: timeout},
		baseURL:           base,
		speechToText:      resolve(base, cfg.SpeechToTextEndpoint, defaultSpeechToText),
		intentRecognition: resolve(base, cfg.IntentRecognitionEndpoint, defaultIntentRecognition),
		intentHandling:    resolve(base, cfg.IntentHandlingEndpoint, defaultIntentHandling),
		textToSpeech:      resolve(base, cfg.TextToSpeechEndpoint, defaultTextToSpeech),
		playWav:           resolve(base, cfg.PlayWavEndpoint, defaultPlayWav),
	}
}

func resolve(base, override, def string) string {
	switch {
	case override == "":
		return base + def
	case strings.HasPrefix(override, "http://"), strings.HasPrefix(override, "https://"):
		return override
	case strings.HasPrefix(override, "/"):
		return base + override
	default:
		return base + "/" + override
	}
}

// SpeechToText posts a whole WAV recording and returns the transcription.
func (c *Client) SpeechToText(ctx context.Context, wav []byte) (string, error) {
	body, err := c.post(ctx, c.speechToText, "audio/wav", wav)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// RecognizeIntent posts the transcript text and returns the recognised
// intent. A response whose intent name is empty means not recognised; the
// caller decides how to surface that.
func (c *Client) RecognizeIntent(ctx context.Context, text string) (RecognizedIntent, error) {
	body, err := c.post(ctx, c.intentRecognition, "text/plain", []byte(text))
	if err != nil {
		return RecognizedIntent{}, err
	}

	var parsed struct {
		Intent struct {
			Name string `json:"name"`
		} `json:"intent"`
		Slots map[string]string `json:"slots"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return RecognizedIntent{}, fmt.Errorf("httpapi: parse intent response: %w", err)
	}
	return RecognizedIntent{Name: parsed.Intent.Name, Slots: parsed.Slots, Raw: body}, nil
}

// HandleIntent posts the raw intent JSON to the handling endpoint and
// returns the reply text to speak, if the handler supplied one.
func (c *Client) HandleIntent(ctx context.Context, intentJSON []byte) (string, error) {
	body, err := c.post(ctx, c.intentHandling, "application/json", intentJSON)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Speech struct {
			Text string `json:"text"`
		} `json:"speech"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("httpapi: parse handle response: %w", err)
		}
	}
	return parsed.Speech.Text, nil
}

// TextToSpeech posts text and returns the synthesized WAV.
func (c *Client) TextToSpeech(ctx context.Context, text string, volume float64) ([]byte, error) {
	endpoint := c.textToSpeech
	if volume > 0 {
		params := url.Values{}
		params.Set("volume", fmt.Sprintf("%.2f", volume))
		endpoint += "?" + params.Encode()
	}
	return c.post(ctx, endpoint, "text/plain", []byte(text))
}

// PlayWav posts a WAV for the remote server to play on its own output.
func (c *Client) PlayWav(ctx context.Context, wav []byte) error {
	_, err := c.post(ctx, c.playWav, "audio/wav", wav)
	return err
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("httpapi: POST %s returned status %d", endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpapi: read response: %w", err)
	}
	return data, nil
}

// IsConnError reports whether err is a transport-level connection failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
