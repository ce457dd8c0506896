// Package mqttconn is the satellite's Hermes MQTT connection: one broker
// client whose incoming messages are decoded into the typed set in
// messages.go and fanned out to subscribers, plus the publish operations the
// domains need.
//
// Domains that satisfy a stage over the broker follow one pattern: publish
// the request, then [AwaitMessage] the first incoming message matching their
// session, bounded by a timeout.
package mqttconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/pipeline"
)

// ErrAwaitTimeout is returned by [AwaitMessage] when no matching message
// arrived within the deadline.
var ErrAwaitTimeout = errors.New("mqttconn: timed out waiting for a matching message")

// Bus is the subscriber side of the connection, extracted so domain tests
// can feed messages without a broker.
type Bus interface {
	// Subscribe registers a listener with the given channel buffer. The
	// cancel func releases the subscription; messages arriving while the
	// buffer is full are dropped for that subscriber.
	Subscribe(buffer int) (<-chan Message, func())
}

// Connection is a live broker connection.
type Connection struct {
	client  mqtt.Client
	siteID  string
	timeout time.Duration

	mu     sync.Mutex
	subs   map[chan Message]struct{}
	closed bool
}

var _ Bus = (*Connection)(nil)
var _ pipeline.SessionNotifier = (*Connection)(nil)

// Connect dials the broker and subscribes to the site's incoming topic set.
func Connect(cfg config.MQTTConfig, siteID string) (*Connection, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Connection{
		siteID:  siteID,
		timeout: timeout,
		subs:    make(map[chan Message]struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(client mqtt.Client) {
			token := client.SubscribeMultiple(incomingFilters(siteID), c.onMessage)
			if token.WaitTimeout(timeout) && token.Error() != nil {
				slog.Error("mqtt subscribe failed", "error", token.Error())
			}
		})

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqttconn: connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttconn: connect to %s: %w", cfg.Broker, err)
	}
	slog.Info("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return c, nil
}

// Close releases all subscriptions and disconnects from the broker.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	c.mu.Unlock()
	c.client.Disconnect(250)
}

// Subscribe implements [Bus].
func (c *Connection) Subscribe(buffer int) (<-chan Message, func()) {
	ch := make(chan Message, buffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Connection) onMessage(_ mqtt.Client, raw mqtt.Message) {
	msg, ok := decodeIncoming(raw.Topic(), raw.Payload())
	if !ok {
		slog.Debug("dropping undecodable mqtt message", "topic", raw.Topic())
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// ─── Publish operations ───────────────────────────────────────────────────────

func (c *Connection) publishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqttconn: marshal %s payload: %w", topic, err)
	}
	return c.publishRaw(topic, data)
}

func (c *Connection) publishRaw(topic string, data []byte) error {
	token := c.client.Publish(topic, 0, false, data)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqttconn: publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttconn: publish %s: %w", topic, err)
	}
	return nil
}

// PublishHotwordDetected announces a locally detected wake word.
func (c *Connection) PublishHotwordDetected(wakeWord string) error {
	return c.publishJSON(topicHotwordDetected(wakeWord), HotwordDetected{ModelID: wakeWord, SiteID: c.siteID})
}

// PublishStartListening opens a remote ASR session.
func (c *Connection) PublishStartListening(sessionID string, sendAudioCaptured bool) error {
	return c.publishJSON(topicAsrStartListening, AsrStartListening{
		SiteID:            c.siteID,
		SessionID:         sessionID,
		StopOnSilence:     true,
		SendAudioCaptured: sendAudioCaptured,
	})
}

// PublishStopListening closes a remote ASR session.
func (c *Connection) PublishStopListening(sessionID string) error {
	return c.publishJSON(topicAsrStopListening, AsrStopListening{SiteID: c.siteID, SessionID: sessionID})
}

// PublishAudioFrame streams one captured WAV frame to the remote ASR.
func (c *Connection) PublishAudioFrame(wavFrame []byte) error {
	return c.publishRaw(topicAudioFrame(c.siteID), wavFrame)
}

// PublishNluQuery asks the remote NLU to recognise text.
func (c *Connection) PublishNluQuery(sessionID, input string) error {
	return c.publishJSON(topicNluQuery, NluQuery{Input: input, SiteID: c.siteID, SessionID: sessionID})
}

// PublishIntent announces a locally recognised intent on its Hermes intent
// topic, where broker-side handlers subscribe.
func (c *Connection) PublishIntent(sessionID, input, intentName string, confidence float64, slots map[string]string) error {
	parsed := IntentParsed{Input: input, SiteID: c.siteID, SessionID: sessionID}
	parsed.Intent.IntentName = intentName
	parsed.Intent.Confidence = confidence
	for name, value := range slots {
		slot := IntentSlot{SlotName: name, RawValue: value}
		slot.Value.Value = value
		parsed.Slots = append(parsed.Slots, slot)
	}
	return c.publishJSON(topicIntent(intentName), parsed)
}

// PublishSay asks the remote TTS to speak for a session.
func (c *Connection) PublishSay(sessionID, text string, volume float64) error {
	return c.publishJSON(topicTtsSay, TtsSay{
		Text:      text,
		Volume:    &volume,
		SiteID:    c.siteID,
		SessionID: sessionID,
	})
}

// PublishPlayBytes sends WAV audio to the site's remote audio server.
func (c *Connection) PublishPlayBytes(requestID string, wav []byte) error {
	return c.publishRaw(topicPlayBytes(c.siteID, requestID), wav)
}

// PublishPlayFinished reports locally finished playback of a request.
func (c *Connection) PublishPlayFinished(requestID string) error {
	return c.publishJSON(topicPlayFinished(c.siteID), PlayFinished{ID: requestID})
}

// NotifySessionStarted implements [pipeline.SessionNotifier].
func (c *Connection) NotifySessionStarted(_ context.Context, sessionID, siteID string) {
	err := c.publishJSON(topicDialogueSessionStarted, DialogueSessionStarted{SessionID: sessionID, SiteID: siteID})
	if err != nil {
		slog.Warn("session started announcement failed", "session_id", sessionID, "error", err)
	}
}

// NotifySessionEnded implements [pipeline.SessionNotifier].
func (c *Connection) NotifySessionEnded(_ context.Context, sessionID, siteID string) {
	err := c.publishJSON(topicDialogueSessionEnded, DialogueSessionEnded{SessionID: sessionID, SiteID: siteID})
	if err != nil {
		slog.Warn("session ended announcement failed", "session_id", sessionID, "error", err)
	}
}

// ─── Wait helper ──────────────────────────────────────────────────────────────

// AwaitMessage blocks until the first incoming message of type T accepted by
// match, the timeout elapses (ErrAwaitTimeout), or ctx ends. A nil match
// accepts every message of type T.
//
// The subscription starts when AwaitMessage is entered, so an answer racing
// the request is only caught when the wait is started before publishing.
func AwaitMessage[T any](ctx context.Context, bus Bus, timeout time.Duration, match func(T) bool) (T, error) {
	ch, cancel := bus.Subscribe(16)
	defer cancel()
	return await(ctx, ch, timeout, match)
}

// RequestReply subscribes, runs send, and waits for the first matching
// answer of type T. Subscribing before publishing means an answer cannot
// slip past between the request and the wait.
func RequestReply[T any](ctx context.Context, bus Bus, timeout time.Duration, send func() error, match func(T) bool) (T, error) {
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	if err := send(); err != nil {
		var zero T
		return zero, err
	}
	return await(ctx, ch, timeout, match)
}

func await[T any](ctx context.Context, ch <-chan Message, timeout time.Duration, match func(T) bool) (T, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return zero, errors.New("mqttconn: connection closed")
			}
			if m, ok := msg.(T); ok && (match == nil || match(m)) {
				return m, nil
			}
		case <-timer.C:
			return zero, ErrAwaitTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
