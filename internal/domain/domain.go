// Package domain implements the pipeline stage contracts. Every domain is
// configured with one backend option (local, http, mqtt, home_assistant, or
// disabled) and converts backend failures into the typed result variants;
// raw errors never cross a stage boundary.
//
// Domains depend on the narrow connection surfaces below, not on concrete
// connection types, so tests run against in-process fakes.
package domain

import (
	"context"

	"github.com/perchlabs/perch/internal/connection/httpapi"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
)

// MqttConn is the broker surface the domains consume. Satisfied by
// *mqttconn.Connection.
type MqttConn interface {
	mqttconn.Bus
	PublishHotwordDetected(wakeWord string) error
	PublishStartListening(sessionID string, sendAudioCaptured bool) error
	PublishStopListening(sessionID string) error
	PublishAudioFrame(wavFrame []byte) error
	PublishNluQuery(sessionID, input string) error
	PublishIntent(sessionID, input, intentName string, confidence float64, slots map[string]string) error
	PublishSay(sessionID, text string, volume float64) error
	PublishPlayBytes(requestID string, wav []byte) error
	PublishPlayFinished(requestID string) error
}

// HTTPConn is the remote Rhasspy-server surface. Satisfied by
// *httpapi.Client.
type HTTPConn interface {
	SpeechToText(ctx context.Context, wav []byte) (string, error)
	RecognizeIntent(ctx context.Context, text string) (httpapi.RecognizedIntent, error)
	HandleIntent(ctx context.Context, intentJSON []byte) (string, error)
	TextToSpeech(ctx context.Context, text string, volume float64) ([]byte, error)
	PlayWav(ctx context.Context, wav []byte) error
}

// HAConn is the HomeAssistant surface. Satisfied by *homeassistant.Client.
type HAConn interface {
	HandleIntent(ctx context.Context, name string, slots map[string]string) (string, error)
	FireEvent(ctx context.Context, name, sessionID, siteID string, slots map[string]string) error
}

// SayCommand is a spoken-reply command arriving over a local surface (the
// web server), targeted at a session.
type SayCommand struct {
	SessionID string
	Text      string
	Volume    *float64
}

// SayBus delivers incoming [SayCommand]s. Satisfied by the web server.
type SayBus interface {
	SubscribeSay() (<-chan SayCommand, func())
}
