package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/perchlabs/perch/internal/config"
)

// ErrPipelineBusy is returned when a trigger arrives while a run is already
// in flight. Triggers are rejected rather than queued: a queued wake trigger
// would fire seconds stale, and racing would break audio-focus exclusivity.
var ErrPipelineBusy = errors.New("pipeline: a run is already in flight")

// BundleFactory builds a fresh per-session domain bundle from a
// configuration snapshot.
type BundleFactory func(cfg *config.Config) (*DomainBundle, error)

// RunObserver receives pipeline lifecycle events for metrics.
type RunObserver interface {
	PipelineStarted()
	PipelineFinished(result PipelineResult, elapsed time.Duration)
}

// Manager is the single entry point for running sessions. It selects and
// builds the pipeline variant matching the current configuration snapshot,
// wires indication, and enforces the single-flight gate: at most one run per
// manager instance.
type Manager struct {
	provider  config.Provider
	factory   BundleFactory
	focus     AudioFocus
	indicator Indicator
	notifier  SessionNotifier
	observer  RunObserver

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// ManagerConfig holds all dependencies for a [Manager]. Indicator, Notifier,
// and Observer may be nil.
type ManagerConfig struct {
	Provider  config.Provider
	Factory   BundleFactory
	Focus     AudioFocus
	Indicator Indicator
	Notifier  SessionNotifier
	Observer  RunObserver
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		provider:  cfg.Provider,
		factory:   cfg.Factory,
		focus:     cfg.Focus,
		indicator: cfg.Indicator,
		notifier:  cfg.Notifier,
		observer:  cfg.Observer,
	}
	if m.notifier == nil {
		m.notifier = NopNotifier{}
	}
	return m
}

// Running reports whether a pipeline run is in flight.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Cancel aborts the in-flight run, if any. Cancellation propagates through
// every outstanding stage wait; audio focus release is handled by the run's
// own cleanup.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunPipeline builds the variant for the current configuration snapshot and
// runs one session. A second trigger while a run is in flight returns
// [ErrPipelineBusy].
func (m *Manager) RunPipeline(ctx context.Context, start StartEvent) (PipelineResult, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil, ErrPipelineBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
	}()

	cfg := m.provider.Current()
	p, err := m.build(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build variant: %w", err)
	}

	if m.indicator != nil {
		m.indicator.OnWakeup()
		defer m.indicator.OnIdle()
	}
	if m.observer != nil {
		m.observer.PipelineStarted()
	}

	began := time.Now()
	result := p.RunPipeline(runCtx, start)
	elapsed := time.Since(began)

	if m.observer != nil {
		m.observer.PipelineFinished(result, elapsed)
	}
	slog.Info("pipeline run finished",
		"session_id", result.ResultSession(),
		"result", fmt.Sprintf("%T", result),
		"source", result.ResultSource(),
		"elapsed", elapsed,
	)
	return result, nil
}

// build constructs the pipeline variant for the snapshot. The bundle is
// owned by the run and disposed when it returns.
func (m *Manager) build(cfg *config.Config) (Pipeline, error) {
	switch cfg.Pipeline {
	case config.PipelineModeDisabled:
		return DisabledPipeline{}, nil

	case config.PipelineModeLocal:
		bundle, err := m.factory(cfg)
		if err != nil {
			return nil, err
		}
		return NewLocal(bundle, m.focus, cfg.Volume, cfg.SiteID), nil

	case config.PipelineModeMQTT:
		bundle, err := m.factory(cfg)
		if err != nil {
			return nil, err
		}
		return NewMqtt(bundle, m.focus, m.notifier, cfg.Volume, cfg.SiteID), nil

	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", cfg.Pipeline)
	}
}
