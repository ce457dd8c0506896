// Package middleware dispatches user actions onto the pipeline: the wake
// trigger loop, manual session triggers, direct say-text, and replay of the
// last captured recording. It sits between the command surfaces (web server,
// signal handling) and the pipeline manager.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/domain"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
)

// ErrNoRecording is returned by PlayLastRecording when no session has been
// captured yet.
var ErrNoRecording = errors.New("middleware: no recording available")

// SessionRunner is the slice of the pipeline manager the middleware drives.
type SessionRunner interface {
	RunPipeline(ctx context.Context, start pipeline.StartEvent) (pipeline.PipelineResult, error)
	Running() bool
	Cancel()
}

// Deps holds the middleware's collaborators. Wake, Bus, and Storage may be
// nil; the wake loop then exits immediately, no broker triggers arrive, and
// replay reports ErrNoRecording.
type Deps struct {
	Runner   SessionRunner
	Wake     pipeline.WakeDomain
	Bus      mqttconn.Bus
	Provider config.Provider
	Factory  pipeline.BundleFactory
	Storage  *audio.FileStorage
}

// Middleware owns the hotword toggle and the replay playback slot.
type Middleware struct {
	runner   SessionRunner
	wake     pipeline.WakeDomain
	bus      mqttconn.Bus
	provider config.Provider
	factory  pipeline.BundleFactory
	storage  *audio.FileStorage

	mu         sync.Mutex
	hotword    bool
	enabledCh  chan struct{}
	wakeCancel context.CancelFunc
	playCancel context.CancelFunc
}

// New creates the middleware with hotword detection enabled.
func New(deps Deps) *Middleware {
	return &Middleware{
		runner:    deps.Runner,
		wake:      deps.Wake,
		bus:       deps.Bus,
		provider:  deps.Provider,
		factory:   deps.Factory,
		storage:   deps.Storage,
		hotword:   true,
		enabledCh: make(chan struct{}, 1),
	}
}

// ─── Wake trigger loop ────────────────────────────────────────────────────────

// Run is the daemon's wake loop: await a detection, run a session, repeat.
// It returns when ctx ends, or immediately when wake detection is configured
// off. A detection arriving while a session runs is dropped, not queued.
// With a broker connected it also starts sessions on dialogue startSession
// messages addressed to this site.
func (m *Middleware) Run(ctx context.Context) error {
	if m.bus != nil {
		go m.watchBroker(ctx)
	}
	if m.wake == nil {
		if m.bus == nil {
			return nil
		}
		<-ctx.Done()
		return nil
	}
	for {
		if err := m.awaitEnabled(ctx); err != nil {
			return nil
		}

		wakeCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.wakeCancel = cancel
		m.mu.Unlock()

		result, err := m.wake.AwaitDetection(wakeCtx)
		cancel()

		switch {
		case errors.Is(err, domain.ErrWakeDisabled):
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.Canceled):
			// Hotword was toggled off mid-wait.
			continue
		case err != nil:
			slog.Warn("wake detection failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		slog.Info("wake word detected", "wake_word", result.WakeWord, "source", result.Source)
		if _, err := m.runner.RunPipeline(ctx, pipeline.StartEvent{WakeWord: result.WakeWord}); err != nil {
			if errors.Is(err, pipeline.ErrPipelineBusy) {
				slog.Debug("wake trigger dropped, session in flight")
			} else {
				slog.Error("session failed to start", "error", err)
			}
		}
	}
}

// watchBroker starts a session whenever a remote dialogue manager opens one
// for this site. A start arriving mid-session is dropped like a wake trigger.
func (m *Middleware) watchBroker(ctx context.Context) {
	ch, cancel := m.bus.Subscribe(16)
	defer cancel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			start, isStart := msg.(mqttconn.DialogueStartSession)
			if !isStart {
				continue
			}
			if start.SiteID != "" && start.SiteID != m.provider.Current().SiteID {
				continue
			}
			slog.Info("session requested by remote dialogue manager", "site_id", start.SiteID)
			switch err := m.ListenForCommand(ctx); {
			case errors.Is(err, pipeline.ErrPipelineBusy):
				slog.Debug("remote session start dropped, session in flight")
			case err != nil:
				slog.Warn("remote session start failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// awaitEnabled blocks while the hotword toggle is off.
func (m *Middleware) awaitEnabled(ctx context.Context) error {
	for {
		m.mu.Lock()
		enabled := m.hotword
		m.mu.Unlock()
		if enabled {
			return nil
		}
		select {
		case <-m.enabledCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetHotwordEnabled toggles wake detection. Disabling aborts an in-flight
// wait; re-enabling resumes the loop where it left off.
func (m *Middleware) SetHotwordEnabled(enabled bool) {
	m.mu.Lock()
	m.hotword = enabled
	cancel := m.wakeCancel
	m.mu.Unlock()

	if enabled {
		select {
		case m.enabledCh <- struct{}{}:
		default:
		}
	} else if cancel != nil {
		cancel()
	}
}

// HotwordEnabled reports the toggle state.
func (m *Middleware) HotwordEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hotword
}

// ─── User actions ─────────────────────────────────────────────────────────────

// ListenForCommand starts a session as if the wake word had fired. The
// session runs in the background; a session already in flight is rejected.
func (m *Middleware) ListenForCommand(_ context.Context) error {
	if m.runner.Running() {
		return pipeline.ErrPipelineBusy
	}
	go func() {
		if _, err := m.runner.RunPipeline(context.Background(), pipeline.StartEvent{}); err != nil && !errors.Is(err, pipeline.ErrPipelineBusy) {
			slog.Error("manual session failed to start", "error", err)
		}
	}()
	return nil
}

// SessionClick is the one-button action: it stops the running session, or
// starts one when idle.
func (m *Middleware) SessionClick(ctx context.Context) error {
	if m.runner.Running() {
		m.runner.Cancel()
		return nil
	}
	return m.ListenForCommand(ctx)
}

// Say synthesizes and plays the text outside any session, through the
// configured Tts and Snd backends.
func (m *Middleware) Say(ctx context.Context, text string) error {
	cfg := m.provider.Current()
	bundle, err := m.factory(cfg)
	if err != nil {
		return fmt.Errorf("middleware: say: %w", err)
	}
	defer bundle.Dispose()

	handle := pipeline.Handle{SessionID: uuid.NewString(), Text: text, Source: pipeline.SourceWebServer}
	switch r := bundle.Tts.AwaitSynthesize(ctx, handle, cfg.Volume, cfg.SiteID).(type) {
	case pipeline.Audio:
		if _, played := bundle.Snd.AwaitPlayAudio(ctx, r).(pipeline.Played); !played {
			return errors.New("middleware: say: playback failed")
		}
		return nil
	case pipeline.Played:
		return nil
	default:
		return fmt.Errorf("middleware: say: synthesis failed (%T)", r)
	}
}

// PlayLastRecording replays the most recently captured session audio in the
// background. StopPlayback aborts it.
func (m *Middleware) PlayLastRecording(ctx context.Context) error {
	if m.storage == nil {
		return ErrNoRecording
	}
	path := m.storage.LastRecording()
	if path == "" {
		return ErrNoRecording
	}
	wav, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("middleware: reading last recording: %w", err)
	}

	cfg := m.provider.Current()
	bundle, err := m.factory(cfg)
	if err != nil {
		return fmt.Errorf("middleware: replay: %w", err)
	}

	playCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.playCancel != nil {
		m.playCancel()
	}
	m.playCancel = cancel
	m.mu.Unlock()

	go func() {
		defer bundle.Dispose()
		defer cancel()
		a := pipeline.Audio{
			SessionID: uuid.NewString(),
			Wav:       wav,
			Volume:    cfg.Volume,
			Source:    pipeline.SourceLocal,
		}
		result := bundle.Snd.AwaitPlayAudio(playCtx, a)
		if _, ok := result.(pipeline.Played); !ok {
			slog.Warn("replaying last recording failed", "result", fmt.Sprintf("%T", result))
		}
	}()
	return nil
}

// StopPlayback aborts an in-flight replay, if any.
func (m *Middleware) StopPlayback() {
	m.mu.Lock()
	cancel := m.playCancel
	m.playCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
