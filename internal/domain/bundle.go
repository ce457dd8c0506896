package domain

import (
	"errors"
	"fmt"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/asr"
	"github.com/perchlabs/perch/pkg/provider/mic"
	"github.com/perchlabs/perch/pkg/provider/snd"
	"github.com/perchlabs/perch/pkg/provider/tts"
)

// Providers groups the process-wide device and engine backends. They outlive
// sessions; domains only borrow them.
type Providers struct {
	Mic         mic.Source
	Transcriber asr.Transcriber
	Synthesizer tts.Synthesizer
	Player      snd.Player
}

// Conns groups the connections. Leave a field nil when the surface is not
// connected — assign only concrete, live values, never typed nil pointers.
type Conns struct {
	MQTT          MqttConn
	HTTP          HTTPConn
	HomeAssistant HAConn
	Say           SayBus
}

// Deps is everything the bundle factory needs besides the configuration
// snapshot.
type Deps struct {
	Providers Providers
	Conns     Conns
	Focus     pipeline.AudioFocus
	Indicator pipeline.Indicator
	History   pipeline.DomainHistory
	Storage   *audio.FileStorage
}

// NewBundleFactory returns the factory the pipeline manager calls per run.
// Each call builds fresh domain instances from the given snapshot, which is
// how configuration changes take effect on the next session.
func NewBundleFactory(deps Deps) pipeline.BundleFactory {
	return func(cfg *config.Config) (*pipeline.DomainBundle, error) {
		if err := checkWiring(cfg, deps); err != nil {
			return nil, err
		}
		d := cfg.Domains
		return &pipeline.DomainBundle{
			Mic:    NewMic(deps.Providers.Mic),
			Vad:    NewVad(d.Vad),
			Asr:    NewAsr(d.Asr, cfg.SiteID, deps.Providers.Transcriber, deps.Conns.HTTP, deps.Conns.MQTT, deps.Storage, deps.Indicator, deps.History),
			Intent: NewIntent(d.Intent, deps.Conns.HTTP, deps.Conns.MQTT, deps.History),
			Handle: NewHandle(d.Handle, cfg.HomeAssistant, cfg.SiteID, deps.Conns.HomeAssistant, deps.Conns.HTTP, deps.Conns.MQTT, deps.Conns.Say, deps.Indicator, deps.History),
			Tts:    NewTts(d.Tts, deps.Providers.Synthesizer, deps.Conns.HTTP, deps.Conns.MQTT, deps.History),
			Snd:    NewSnd(d.Snd, deps.Providers.Player, deps.Conns.HTTP, deps.Conns.MQTT, deps.Focus, deps.Indicator, deps.History),
		}, nil
	}
}

// checkWiring rejects snapshots whose domain options point at surfaces that
// are not connected. Config validation catches this for static settings;
// this guards against a watcher reload flipping an option at runtime.
func checkWiring(cfg *config.Config, deps Deps) error {
	var errs []error
	need := func(domainName string, opt config.Option) {
		switch opt {
		case config.OptionMQTT:
			if deps.Conns.MQTT == nil {
				errs = append(errs, fmt.Errorf("domain %s: option mqtt without a broker connection", domainName))
			}
		case config.OptionHTTP:
			if deps.Conns.HTTP == nil {
				errs = append(errs, fmt.Errorf("domain %s: option http without a remote server connection", domainName))
			}
		case config.OptionHomeAssistant:
			if deps.Conns.HomeAssistant == nil {
				errs = append(errs, fmt.Errorf("domain %s: option home_assistant without a HomeAssistant connection", domainName))
			}
		}
	}
	d := cfg.Domains
	need("asr", d.Asr.Option)
	need("intent", d.Intent.Option)
	need("handle", d.Handle.Option)
	need("tts", d.Tts.Option)
	need("snd", d.Snd.Option)

	if d.Asr.Option == config.OptionLocal && deps.Providers.Transcriber == nil {
		errs = append(errs, errors.New("domain asr: option local without a transcriber"))
	}
	if d.Tts.Option == config.OptionLocal && deps.Providers.Synthesizer == nil {
		errs = append(errs, errors.New("domain tts: option local without a synthesizer"))
	}
	if d.Snd.Option == config.OptionLocal && deps.Providers.Player == nil {
		errs = append(errs, errors.New("domain snd: option local without a player"))
	}
	if deps.Providers.Mic == nil {
		errs = append(errs, errors.New("domain mic: no capture source"))
	}
	return errors.Join(errs...)
}
