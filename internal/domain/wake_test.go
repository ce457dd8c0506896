package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
	micmock "github.com/perchlabs/perch/pkg/provider/mic/mock"
	"github.com/perchlabs/perch/pkg/provider/wake"
	wakemock "github.com/perchlabs/perch/pkg/provider/wake/mock"
)

func TestWakeDisabled(t *testing.T) {
	w := NewWake(config.WakeConfig{Option: config.OptionDisabled}, "default", nil, nil, nil)

	if _, err := w.AwaitDetection(context.Background()); !errors.Is(err, ErrWakeDisabled) {
		t.Fatalf("err = %v, want ErrWakeDisabled", err)
	}
}

func TestWakeLocalDetection(t *testing.T) {
	detector := &wakemock.Detector{Result: wake.Detection{Keyword: "porcupine"}}
	source := &micmock.Source{}
	conn := newFakeMqtt()
	w := NewWake(config.WakeConfig{Option: config.OptionLocal}, "default", detector, source, conn)

	result, err := w.AwaitDetection(context.Background())
	if err != nil {
		t.Fatalf("AwaitDetection: %v", err)
	}
	if result.WakeWord != "porcupine" {
		t.Errorf("WakeWord = %q", result.WakeWord)
	}
	if result.Source != pipeline.SourceLocal {
		t.Errorf("Source = %q, want local", result.Source)
	}
	if source.StartCount != 1 {
		t.Errorf("StartCount = %d, want 1", source.StartCount)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.hotwords) != 1 || conn.hotwords[0] != "porcupine" {
		t.Errorf("hotwords = %v, want the detection announced", conn.hotwords)
	}
}

func TestWakeLocalKeywordOverride(t *testing.T) {
	detector := &wakemock.Detector{Result: wake.Detection{Keyword: "model-name"}}
	w := NewWake(config.WakeConfig{Option: config.OptionLocal, Keyword: "hey perch"}, "default", detector, &micmock.Source{}, nil)

	result, err := w.AwaitDetection(context.Background())
	if err != nil {
		t.Fatalf("AwaitDetection: %v", err)
	}
	if result.WakeWord != "hey perch" {
		t.Errorf("WakeWord = %q, want the configured keyword", result.WakeWord)
	}
}

func TestWakeLocalDetectorError(t *testing.T) {
	detector := &wakemock.Detector{Err: errors.New("engine crashed")}
	w := NewWake(config.WakeConfig{Option: config.OptionLocal}, "default", detector, &micmock.Source{}, nil)

	if _, err := w.AwaitDetection(context.Background()); err == nil {
		t.Fatal("want the detector error")
	}
}

func TestWakeRemoteHotword(t *testing.T) {
	conn := newFakeMqtt()
	w := NewWake(config.WakeConfig{Option: config.OptionMQTT}, "default", nil, nil, conn)

	// A detection for another site must be ignored.
	conn.emitSoon(mqttconn.HotwordDetected{WakeWord: "other-word", SiteID: "kitchen"})
	go func() {
		time.Sleep(60 * time.Millisecond)
		conn.emit(mqttconn.HotwordDetected{WakeWord: "porcupine", SiteID: "default"})
	}()

	result, err := w.AwaitDetection(context.Background())
	if err != nil {
		t.Fatalf("AwaitDetection: %v", err)
	}
	if result.WakeWord != "porcupine" {
		t.Errorf("WakeWord = %q", result.WakeWord)
	}
	if result.Source != pipeline.SourceMQTT {
		t.Errorf("Source = %q, want mqtt", result.Source)
	}
}

func TestWakeRemoteBroadcastSite(t *testing.T) {
	conn := newFakeMqtt()
	w := NewWake(config.WakeConfig{Option: config.OptionMQTT}, "default", nil, nil, conn)

	conn.emitSoon(mqttconn.HotwordDetected{WakeWord: "porcupine"})

	result, err := w.AwaitDetection(context.Background())
	if err != nil {
		t.Fatalf("AwaitDetection: %v", err)
	}
	if result.WakeWord != "porcupine" {
		t.Errorf("WakeWord = %q, want the broadcast detection taken", result.WakeWord)
	}
}

func TestWakeRemoteCancel(t *testing.T) {
	conn := newFakeMqtt()
	w := NewWake(config.WakeConfig{Option: config.OptionMQTT}, "default", nil, nil, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.AwaitDetection(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
