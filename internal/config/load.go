package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with workable defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.SiteID == "" {
		cfg.SiteID = "default"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Volume == 0 {
		cfg.Volume = 0.8
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = "recordings"
	}
	if cfg.Pipeline == "" {
		cfg.Pipeline = PipelineModeLocal
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "perch-" + cfg.SiteID
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = 10 * time.Second
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = 10 * time.Second
	}
	if cfg.HomeAssistant.Mode == "" {
		cfg.HomeAssistant.Mode = HomeAssistantModeIntent
	}
	if cfg.HomeAssistant.EventTimeout == 0 {
		cfg.HomeAssistant.EventTimeout = 20 * time.Second
	}
	if cfg.WebServer.ListenAddr == "" {
		cfg.WebServer.ListenAddr = ":12101"
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = 100
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}

	d := &cfg.Domains
	if d.Wake.Option == "" {
		d.Wake.Option = OptionDisabled
	}
	if d.Wake.Keyword == "" {
		d.Wake.Keyword = "default"
	}
	if d.Mic.SampleRate == 0 {
		d.Mic.SampleRate = 16000
	}
	if d.Mic.Channels == 0 {
		d.Mic.Channels = 1
	}
	if d.Vad.Option == "" {
		d.Vad.Option = OptionLocal
	}
	if d.Vad.SilenceDuration == 0 {
		d.Vad.SilenceDuration = 2 * time.Second
	}
	if d.Vad.Threshold == 0 {
		d.Vad.Threshold = 577 // matches the original default audio level
	}
	if d.Vad.VoiceTimeout == 0 {
		d.Vad.VoiceTimeout = 30 * time.Second
	}
	if d.Asr.Option == "" {
		d.Asr.Option = OptionDisabled
	}
	if d.Asr.Timeout == 0 {
		d.Asr.Timeout = 10 * time.Second
	}
	if d.Intent.Option == "" {
		d.Intent.Option = OptionDisabled
	}
	if d.Intent.Timeout == 0 {
		d.Intent.Timeout = 10 * time.Second
	}
	if d.Intent.MinScore == 0 {
		d.Intent.MinScore = 0.75
	}
	if d.Handle.Option == "" {
		d.Handle.Option = OptionDisabled
	}
	if d.Handle.Timeout == 0 {
		d.Handle.Timeout = 10 * time.Second
	}
	if d.Tts.Option == "" {
		d.Tts.Option = OptionDisabled
	}
	if d.Tts.Timeout == 0 {
		d.Tts.Timeout = 10 * time.Second
	}
	if d.Snd.Option == "" {
		d.Snd.Option = OptionLocal
	}
	if d.Snd.Timeout == 0 {
		d.Snd.Timeout = 30 * time.Second
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", cfg.LogLevel))
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume: %v outside [0, 1]", cfg.Volume))
	}
	if !cfg.Pipeline.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline: unknown mode %q", cfg.Pipeline))
	}
	if cfg.Pipeline == PipelineModeMQTT && !cfg.MQTT.Enabled {
		errs = append(errs, errors.New("pipeline: mqtt mode requires mqtt.enabled"))
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt: broker is required when enabled"))
	}

	checkOption := func(name string, o Option, allowed ...Option) {
		for _, a := range allowed {
			if o == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("domains.%s: option %q not allowed", name, o))
	}
	d := cfg.Domains
	checkOption("wake", d.Wake.Option, OptionLocal, OptionMQTT, OptionDisabled)
	checkOption("vad", d.Vad.Option, OptionLocal, OptionDisabled)
	checkOption("asr", d.Asr.Option, OptionLocal, OptionHTTP, OptionMQTT, OptionDisabled)
	checkOption("intent", d.Intent.Option, OptionLocal, OptionHTTP, OptionMQTT, OptionDisabled)
	checkOption("handle", d.Handle.Option, OptionHomeAssistant, OptionHTTP, OptionMQTT, OptionDisabled)
	checkOption("tts", d.Tts.Option, OptionLocal, OptionHTTP, OptionMQTT, OptionDisabled)
	checkOption("snd", d.Snd.Option, OptionLocal, OptionHTTP, OptionMQTT, OptionDisabled)

	mqttDomains := map[string]Option{
		"wake": d.Wake.Option, "asr": d.Asr.Option, "intent": d.Intent.Option,
		"handle": d.Handle.Option, "tts": d.Tts.Option, "snd": d.Snd.Option,
	}
	for name, o := range mqttDomains {
		if o == OptionMQTT && !cfg.MQTT.Enabled {
			errs = append(errs, fmt.Errorf("domains.%s: mqtt option requires mqtt.enabled", name))
		}
	}
	httpDomains := map[string]Option{
		"asr": d.Asr.Option, "intent": d.Intent.Option, "handle": d.Handle.Option,
		"tts": d.Tts.Option, "snd": d.Snd.Option,
	}
	for name, o := range httpDomains {
		if o == OptionHTTP && cfg.HTTP.BaseURL == "" {
			errs = append(errs, fmt.Errorf("domains.%s: http option requires http.base_url", name))
		}
	}
	if d.Asr.Option == OptionLocal && d.Asr.ModelPath == "" {
		errs = append(errs, errors.New("domains.asr: local option requires model_path"))
	}
	if d.Handle.Option == OptionHomeAssistant {
		if cfg.HomeAssistant.URL == "" {
			errs = append(errs, errors.New("domains.handle: home_assistant option requires home_assistant.url"))
		}
		if !cfg.HomeAssistant.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("home_assistant: unknown mode %q", cfg.HomeAssistant.Mode))
		}
	}
	if d.Intent.Option == OptionLocal {
		if d.Intent.MinScore < 0 || d.Intent.MinScore > 1 {
			errs = append(errs, fmt.Errorf("domains.intent: min_score %v outside [0, 1]", d.Intent.MinScore))
		}
		for i, s := range d.Intent.Sentences {
			if s.Intent == "" {
				errs = append(errs, fmt.Errorf("domains.intent.sentences[%d]: intent name missing", i))
			}
			if len(s.Examples) == 0 {
				errs = append(errs, fmt.Errorf("domains.intent.sentences[%d]: no examples", i))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}
