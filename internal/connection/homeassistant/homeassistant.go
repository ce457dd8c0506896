// Package homeassistant is the client for HomeAssistant's intent and event
// REST endpoints. Intent mode answers synchronously with the text to speak;
// event mode only fires an event, and the answer (if any) comes back
// asynchronously over MQTT or the web server, which the Handle domain waits
// on.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/perchlabs/perch/internal/config"
)

// Client talks to one HomeAssistant instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a client from configuration.
func NewClient(cfg config.HomeAssistantConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.AccessToken,
	}
}

// HandleIntent posts the intent to /api/intent/handle and returns the plain
// speech reply, which may be empty when the intent produced no answer.
func (c *Client) HandleIntent(ctx context.Context, name string, slots map[string]string) (string, error) {
	payload := struct {
		Name string            `json:"name"`
		Data map[string]string `json:"data,omitempty"`
	}{Name: name, Data: slots}

	body, err := c.post(ctx, "/api/intent/handle", payload)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Speech struct {
			Plain struct {
				Speech string `json:"speech"`
			} `json:"plain"`
		} `json:"speech"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("homeassistant: parse intent response: %w", err)
		}
	}
	return parsed.Speech.Plain.Speech, nil
}

// FireEvent posts the intent as a rhasspy_<name> event. Slot values plus the
// session id land in the event data so an automation can answer the right
// session.
func (c *Client) FireEvent(ctx context.Context, name, sessionID, siteID string, slots map[string]string) error {
	data := make(map[string]string, len(slots)+2)
	for k, v := range slots {
		data[k] = v
	}
	data["_session_id"] = sessionID
	data["_site_id"] = siteID

	_, err := c.post(ctx, "/api/events/rhasspy_"+name, data)
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("homeassistant: marshal %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("homeassistant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("homeassistant: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("homeassistant: POST %s returned status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
