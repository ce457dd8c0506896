package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/perchlabs/perch/internal/config"
)

type recordingIndicator struct {
	mu     sync.Mutex
	events []string
}

func (i *recordingIndicator) record(ev string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, ev)
}

func (i *recordingIndicator) OnIdle()      { i.record("idle") }
func (i *recordingIndicator) OnWakeup()    { i.record("wakeup") }
func (i *recordingIndicator) OnListening() { i.record("listening") }
func (i *recordingIndicator) OnThinking()  { i.record("thinking") }
func (i *recordingIndicator) OnSpeaking()  { i.record("speaking") }

func managerConfig(mode config.PipelineMode) *config.Config {
	return &config.Config{
		SiteID:   "default",
		Volume:   0.5,
		Pipeline: mode,
	}
}

func newTestManager(f *fixture, mode config.PipelineMode) *Manager {
	return NewManager(ManagerConfig{
		Provider: config.Static{Config: managerConfig(mode)},
		Factory:  func(*config.Config) (*DomainBundle, error) { return f.bundle(), nil },
		Focus:    f.focus,
	})
}

func TestManagerRunPipelineLocal(t *testing.T) {
	f := happyFixture()
	m := newTestManager(f, config.PipelineModeLocal)

	result, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s1"})
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if _, ok := result.(Played); !ok {
		t.Fatalf("result = %T (%v), want Played", result, result)
	}
	if m.Running() {
		t.Error("manager still reports running after the run returned")
	}
}

func TestManagerRunPipelineDisabledSkipsFactory(t *testing.T) {
	factoryCalls := 0
	m := NewManager(ManagerConfig{
		Provider: config.Static{Config: managerConfig(config.PipelineModeDisabled)},
		Factory: func(*config.Config) (*DomainBundle, error) {
			factoryCalls++
			return nil, errors.New("must not be called")
		},
		Focus: &fakeFocus{},
	})

	result, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s1"})
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if _, ok := result.(DisabledResult); !ok {
		t.Fatalf("result = %T, want DisabledResult", result)
	}
	if factoryCalls != 0 {
		t.Errorf("factory called %d times for the disabled variant", factoryCalls)
	}
}

func TestManagerRunPipelineUnknownMode(t *testing.T) {
	f := happyFixture()
	m := newTestManager(f, config.PipelineMode("carrier-pigeon"))

	if _, err := m.RunPipeline(context.Background(), StartEvent{}); err == nil {
		t.Fatal("expected an error for an unknown pipeline mode")
	}
}

func TestManagerRunPipelineFactoryError(t *testing.T) {
	wantErr := errors.New("no asr model")
	m := NewManager(ManagerConfig{
		Provider: config.Static{Config: managerConfig(config.PipelineModeLocal)},
		Factory:  func(*config.Config) (*DomainBundle, error) { return nil, wantErr },
		Focus:    &fakeFocus{},
	})

	_, err := m.RunPipeline(context.Background(), StartEvent{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
	if m.Running() {
		t.Error("manager reports running after a build failure")
	}
}

func TestManagerRejectsConcurrentRuns(t *testing.T) {
	f := happyFixture()
	f.asr.entered = make(chan struct{})
	f.asr.release = make(chan struct{})
	entered := f.asr.entered
	release := f.asr.release
	m := newTestManager(f, config.PipelineModeLocal)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s1"}); err != nil {
			t.Errorf("first run: %v", err)
		}
	}()

	<-entered
	if !m.Running() {
		t.Error("Running() = false while a run is in flight")
	}
	if _, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s2"}); !errors.Is(err, ErrPipelineBusy) {
		t.Errorf("second run err = %v, want ErrPipelineBusy", err)
	}

	close(release)
	<-done

	// The gate is free again once the first run completed.
	if _, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s3"}); err != nil {
		t.Errorf("run after completion: %v", err)
	}
}

func TestManagerCancelAbortsRun(t *testing.T) {
	f := happyFixture()
	f.asr.entered = make(chan struct{})
	f.asr.release = make(chan struct{}) // never closed
	entered := f.asr.entered
	m := newTestManager(f, config.PipelineModeLocal)

	done := make(chan PipelineResult, 1)
	go func() {
		result, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s1"})
		if err != nil {
			t.Errorf("RunPipeline: %v", err)
			return
		}
		done <- result
	}()

	<-entered
	m.Cancel()
	result := <-done

	if _, ok := result.(TranscriptError); !ok {
		t.Fatalf("result = %T (%v), want TranscriptError after cancel", result, result)
	}
	if got := f.focus.held(FocusRecord); got != 0 {
		t.Errorf("record focus still held %d times after cancel", got)
	}
	if m.Running() {
		t.Error("manager still reports running after cancel")
	}
}

func TestManagerIndicatorLifecycle(t *testing.T) {
	f := happyFixture()
	ind := &recordingIndicator{}
	m := NewManager(ManagerConfig{
		Provider:  config.Static{Config: managerConfig(config.PipelineModeLocal)},
		Factory:   func(*config.Config) (*DomainBundle, error) { return f.bundle(), nil },
		Focus:     f.focus,
		Indicator: ind,
	})

	if _, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s1"}); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	if len(ind.events) < 2 || ind.events[0] != "wakeup" || ind.events[len(ind.events)-1] != "idle" {
		t.Errorf("indicator events = %v, want wakeup first and idle last", ind.events)
	}
}

func TestManagerMqttVariantUsesNotifier(t *testing.T) {
	f := happyFixture()
	notifier := &recordingNotifier{}
	m := NewManager(ManagerConfig{
		Provider: config.Static{Config: managerConfig(config.PipelineModeMQTT)},
		Factory:  func(*config.Config) (*DomainBundle, error) { return f.bundle(), nil },
		Focus:    f.focus,
		Notifier: notifier,
	})

	if _, err := m.RunPipeline(context.Background(), StartEvent{SessionID: "s1"}); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if len(notifier.started) != 1 || len(notifier.ended) != 1 {
		t.Errorf("notifications: %d started, %d ended, want 1 each", len(notifier.started), len(notifier.ended))
	}
}
