package domain

import (
	"strings"
	"testing"

	"github.com/perchlabs/perch/internal/audiofocus"
	"github.com/perchlabs/perch/internal/config"
	asrmock "github.com/perchlabs/perch/pkg/provider/asr/mock"
	micmock "github.com/perchlabs/perch/pkg/provider/mic/mock"
	sndmock "github.com/perchlabs/perch/pkg/provider/snd/mock"
	ttsmock "github.com/perchlabs/perch/pkg/provider/tts/mock"
)

func localConfig() *config.Config {
	cfg := &config.Config{SiteID: "default"}
	cfg.Domains.Vad.Option = config.OptionLocal
	cfg.Domains.Asr.Option = config.OptionLocal
	cfg.Domains.Intent.Option = config.OptionLocal
	cfg.Domains.Handle.Option = config.OptionHomeAssistant
	cfg.Domains.Tts.Option = config.OptionLocal
	cfg.Domains.Snd.Option = config.OptionLocal
	return cfg
}

func localDeps() Deps {
	return Deps{
		Providers: Providers{
			Mic:         &micmock.Source{},
			Transcriber: &asrmock.Transcriber{},
			Synthesizer: &ttsmock.Synthesizer{},
			Player:      &sndmock.Player{},
		},
		Conns: Conns{HomeAssistant: &fakeHA{}},
		Focus: audiofocus.New(),
	}
}

func TestBundleFactoryBuildsAllDomains(t *testing.T) {
	factory := NewBundleFactory(localDeps())

	bundle, err := factory(localConfig())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if bundle.Mic == nil || bundle.Vad == nil || bundle.Asr == nil ||
		bundle.Intent == nil || bundle.Handle == nil || bundle.Tts == nil || bundle.Snd == nil {
		t.Errorf("bundle has nil domains: %+v", bundle)
	}
}

func TestBundleFactoryWiringChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config, deps *Deps)
		want   string
	}{
		{
			name:   "mqtt option without broker",
			mutate: func(cfg *config.Config, _ *Deps) { cfg.Domains.Asr.Option = config.OptionMQTT },
			want:   "domain asr",
		},
		{
			name:   "http option without remote server",
			mutate: func(cfg *config.Config, _ *Deps) { cfg.Domains.Intent.Option = config.OptionHTTP },
			want:   "domain intent",
		},
		{
			name: "home_assistant option without connection",
			mutate: func(_ *config.Config, deps *Deps) {
				deps.Conns.HomeAssistant = nil
			},
			want: "domain handle",
		},
		{
			name: "local asr without transcriber",
			mutate: func(_ *config.Config, deps *Deps) {
				deps.Providers.Transcriber = nil
			},
			want: "domain asr",
		},
		{
			name: "local tts without synthesizer",
			mutate: func(_ *config.Config, deps *Deps) {
				deps.Providers.Synthesizer = nil
			},
			want: "domain tts",
		},
		{
			name: "local snd without player",
			mutate: func(_ *config.Config, deps *Deps) {
				deps.Providers.Player = nil
			},
			want: "domain snd",
		},
		{
			name: "no capture source",
			mutate: func(_ *config.Config, deps *Deps) {
				deps.Providers.Mic = nil
			},
			want: "domain mic",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := localConfig()
			deps := localDeps()
			tc.mutate(cfg, &deps)

			_, err := NewBundleFactory(deps)(cfg)
			if err == nil {
				t.Fatal("want a wiring error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not name %q", err, tc.want)
			}
		})
	}
}

func TestBundleFactoryDisabledDomainsNeedNothing(t *testing.T) {
	cfg := &config.Config{SiteID: "default"}
	cfg.Domains.Vad.Option = config.OptionDisabled
	cfg.Domains.Asr.Option = config.OptionDisabled
	cfg.Domains.Intent.Option = config.OptionDisabled
	cfg.Domains.Handle.Option = config.OptionDisabled
	cfg.Domains.Tts.Option = config.OptionDisabled
	cfg.Domains.Snd.Option = config.OptionDisabled

	deps := Deps{Providers: Providers{Mic: &micmock.Source{}}, Focus: audiofocus.New()}

	if _, err := NewBundleFactory(deps)(cfg); err != nil {
		t.Fatalf("factory: %v", err)
	}
}
