// Package config provides the configuration schema, loader, and file watcher
// for the perch voice satellite.
//
// Components never read this package's types mid-operation: a [Provider]
// hands out point-in-time snapshots at construction time, and changed
// settings apply to the next session when the pipeline manager rebuilds its
// domains.
package config

import "time"

// LogLevel controls log verbosity for the satellite daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Option selects the backend driving one pipeline domain.
type Option string

const (
	// OptionLocal computes the stage on-device.
	OptionLocal Option = "local"

	// OptionHTTP calls the remote Rhasspy-style HTTP endpoint.
	OptionHTTP Option = "http"

	// OptionMQTT satisfies the stage over the Hermes MQTT dialogue protocol.
	OptionMQTT Option = "mqtt"

	// OptionHomeAssistant hands the stage to HomeAssistant (Handle domain only).
	OptionHomeAssistant Option = "home_assistant"

	// OptionDisabled turns the stage off; its Await* returns the *Disabled
	// variant without any I/O.
	OptionDisabled Option = "disabled"
)

// IsValid reports whether o is a recognised backend option.
func (o Option) IsValid() bool {
	switch o {
	case OptionLocal, OptionHTTP, OptionMQTT, OptionHomeAssistant, OptionDisabled:
		return true
	}
	return false
}

// PipelineMode selects the pipeline variant the manager builds.
type PipelineMode string

const (
	PipelineModeLocal    PipelineMode = "local"
	PipelineModeMQTT     PipelineMode = "mqtt"
	PipelineModeDisabled PipelineMode = "disabled"
)

// IsValid reports whether m is a recognised pipeline mode.
func (m PipelineMode) IsValid() bool {
	switch m {
	case PipelineModeLocal, PipelineModeMQTT, PipelineModeDisabled:
		return true
	}
	return false
}

// HomeAssistantMode selects how the Handle domain talks to HomeAssistant.
type HomeAssistantMode string

const (
	// HomeAssistantModeIntent posts to the intent endpoint and reads the
	// spoken reply from the HTTP response.
	HomeAssistantModeIntent HomeAssistantMode = "intent"

	// HomeAssistantModeEvent fires an event and waits for an EndSession or
	// Say message to come back over MQTT or the web server.
	HomeAssistantModeEvent HomeAssistantMode = "event"
)

// IsValid reports whether m is a recognised HomeAssistant handling mode.
func (m HomeAssistantMode) IsValid() bool {
	return m == HomeAssistantModeIntent || m == HomeAssistantModeEvent
}

// Config is the root configuration structure for the satellite.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// SiteID identifies this satellite on the Hermes bus (e.g., "kitchen").
	SiteID string `yaml:"site_id"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Volume is the playback volume in [0, 1] applied to synthesized speech.
	Volume float64 `yaml:"volume"`

	// AudioDir is the directory for per-session WAV recordings.
	AudioDir string `yaml:"audio_dir"`

	// Pipeline selects the variant: local, mqtt, or disabled.
	Pipeline PipelineMode `yaml:"pipeline"`

	MQTT          MQTTConfig          `yaml:"mqtt"`
	HTTP          HTTPConfig          `yaml:"http"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	WebServer     WebServerConfig     `yaml:"webserver"`
	History       HistoryConfig       `yaml:"history"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Domains       DomainsConfig       `yaml:"domains"`
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	// Enabled turns the MQTT connection on. Domains configured with the
	// mqtt option require it.
	Enabled bool `yaml:"enabled"`

	// Broker is the broker URI (e.g., "tcp://10.0.0.2:1883").
	Broker string `yaml:"broker"`

	// ClientID is the MQTT client identifier. Defaults to "perch-<site_id>".
	ClientID string `yaml:"client_id"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeout bounds the initial broker connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// HTTPConfig holds the remote Rhasspy-style HTTP endpoints.
// Endpoint fields override the path derived from BaseURL when set.
type HTTPConfig struct {
	// BaseURL is the remote server root (e.g., "http://10.0.0.2:12101").
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout"`

	SpeechToTextEndpoint      string `yaml:"speech_to_text_endpoint"`
	IntentRecognitionEndpoint string `yaml:"intent_recognition_endpoint"`
	IntentHandlingEndpoint    string `yaml:"intent_handling_endpoint"`
	TextToSpeechEndpoint      string `yaml:"text_to_speech_endpoint"`
	PlayWavEndpoint           string `yaml:"play_wav_endpoint"`
}

// HomeAssistantConfig holds HomeAssistant intent-handling settings.
type HomeAssistantConfig struct {
	// URL is the HomeAssistant root (e.g., "http://10.0.0.3:8123").
	URL string `yaml:"url"`

	// AccessToken is the long-lived bearer token.
	AccessToken string `yaml:"access_token"`

	// Mode selects intent-endpoint or event-based handling.
	Mode HomeAssistantMode `yaml:"mode"`

	// EventTimeout bounds the wait for EndSession/Say after firing an event.
	EventTimeout time.Duration `yaml:"event_timeout"`
}

// WebServerConfig holds the local command/event HTTP surface.
type WebServerConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address to listen on (e.g., ":12101").
	ListenAddr string `yaml:"listen_addr"`
}

// HistoryConfig configures the domain history log.
type HistoryConfig struct {
	// Limit caps the number of in-memory entries kept for UI replay.
	Limit int `yaml:"limit"`

	// PostgresDSN, when set, mirrors history entries to a Postgres table.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the address serving /metrics (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`
}

// DomainsConfig groups the per-stage domain settings.
type DomainsConfig struct {
	Wake   WakeConfig   `yaml:"wake"`
	Mic    MicConfig    `yaml:"mic"`
	Vad    VadConfig    `yaml:"vad"`
	Asr    AsrConfig    `yaml:"asr"`
	Intent IntentConfig `yaml:"intent"`
	Handle HandleConfig `yaml:"handle"`
	Tts    TtsConfig    `yaml:"tts"`
	Snd    SndConfig    `yaml:"snd"`
}

// WakeConfig configures wake word detection.
type WakeConfig struct {
	// Option: local, mqtt, or disabled.
	Option Option `yaml:"option"`

	// Keyword is the wake word name reported with detections.
	Keyword string `yaml:"keyword"`
}

// MicConfig configures audio capture.
type MicConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// VadConfig configures voice activity / silence detection.
type VadConfig struct {
	// Option: local or disabled. Disabled treats voice as immediately
	// started and stopped only by stream end.
	Option Option `yaml:"option"`

	// SilenceDuration is how long the level must stay below the threshold
	// before silence is declared.
	SilenceDuration time.Duration `yaml:"silence_duration"`

	// MinimumRecording is the recording time that must elapse before
	// silence detection may fire at all.
	MinimumRecording time.Duration `yaml:"minimum_recording"`

	// Threshold is the peak 16-bit sample level separating voice from
	// silence.
	Threshold int16 `yaml:"threshold"`

	// VoiceTimeout bounds the wait for voice to start.
	VoiceTimeout time.Duration `yaml:"voice_timeout"`
}

// AsrConfig configures speech-to-text.
type AsrConfig struct {
	// Option: local, http, mqtt, or disabled.
	Option Option `yaml:"option"`

	// ModelPath is the whisper model file for the local option.
	ModelPath string `yaml:"model_path"`

	// Timeout bounds the whole transcription stage.
	Timeout time.Duration `yaml:"timeout"`

	// SendAudioCaptured also broadcasts the captured WAV over MQTT when true.
	SendAudioCaptured bool `yaml:"send_audio_captured"`
}

// IntentConfig configures intent recognition.
type IntentConfig struct {
	// Option: local, http, mqtt, or disabled.
	Option Option `yaml:"option"`

	// Timeout bounds the recognition stage.
	Timeout time.Duration `yaml:"timeout"`

	// MinScore is the minimum fuzzy-match similarity in [0, 1] for the
	// local recognizer to accept a sentence.
	MinScore float64 `yaml:"min_score"`

	// Sentences lists the local recognizer's intents and example phrases.
	Sentences []IntentSentences `yaml:"sentences"`
}

// IntentSentences maps one intent name to its example phrases.
type IntentSentences struct {
	Intent   string   `yaml:"intent"`
	Examples []string `yaml:"examples"`
}

// HandleConfig configures intent handling.
type HandleConfig struct {
	// Option: home_assistant, http, mqtt, or disabled.
	Option Option `yaml:"option"`

	// Timeout bounds the handling stage.
	Timeout time.Duration `yaml:"timeout"`
}

// TtsConfig configures speech synthesis.
type TtsConfig struct {
	// Option: local, http, mqtt, or disabled.
	Option Option `yaml:"option"`

	// Voice is the local synthesizer voice (e.g., "en").
	Voice string `yaml:"voice"`

	// Timeout bounds the synthesis stage.
	Timeout time.Duration `yaml:"timeout"`
}

// SndConfig configures audio playback.
type SndConfig struct {
	// Option: local, http, mqtt, or disabled.
	Option Option `yaml:"option"`

	// Timeout bounds the playback stage.
	Timeout time.Duration `yaml:"timeout"`
}
