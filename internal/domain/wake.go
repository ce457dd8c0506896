package domain

import (
	"context"
	"errors"
	"log/slog"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/provider/mic"
	"github.com/perchlabs/perch/pkg/provider/wake"
)

// ErrWakeDisabled is returned by AwaitDetection when wake detection is
// turned off; the caller must not loop on it.
var ErrWakeDisabled = errors.New("domain: wake detection is disabled")

// Wake implements [pipeline.WakeDomain]. It is long-lived, owned by the
// daemon's trigger loop rather than built per session: detection runs
// between sessions, not inside them.
type Wake struct {
	cfg      config.WakeConfig
	siteID   string
	detector wake.Detector
	source   mic.Source
	conn     MqttConn
}

var _ pipeline.WakeDomain = (*Wake)(nil)

// NewWake builds the wake domain. detector and source are required for the
// local option; conn is required for the mqtt option and optional otherwise
// (local detections are announced on the bus when it is present).
func NewWake(cfg config.WakeConfig, siteID string, detector wake.Detector, source mic.Source, conn MqttConn) *Wake {
	return &Wake{cfg: cfg, siteID: siteID, detector: detector, source: source, conn: conn}
}

// AwaitDetection blocks until a wake word fires, locally or on the broker
// depending on the configured option.
func (w *Wake) AwaitDetection(ctx context.Context) (pipeline.WakeResult, error) {
	switch w.cfg.Option {
	case config.OptionDisabled:
		return pipeline.WakeResult{}, ErrWakeDisabled

	case config.OptionMQTT:
		msg, err := awaitHotword(ctx, w.conn, w.siteID)
		if err != nil {
			return pipeline.WakeResult{}, err
		}
		return pipeline.WakeResult{WakeWord: msg.WakeWord, Source: pipeline.SourceMQTT}, nil

	default: // local
		stream, err := w.source.Start(ctx)
		if err != nil {
			return pipeline.WakeResult{}, err
		}
		detection, err := w.detector.Detect(ctx, stream)
		if err != nil {
			return pipeline.WakeResult{}, err
		}
		keyword := detection.Keyword
		if w.cfg.Keyword != "" {
			keyword = w.cfg.Keyword
		}
		if w.conn != nil {
			if err := w.conn.PublishHotwordDetected(keyword); err != nil {
				slog.Warn("hotword announcement failed", "wake_word", keyword, "error", err)
			}
		}
		return pipeline.WakeResult{WakeWord: keyword, Source: pipeline.SourceLocal}, nil
	}
}

// awaitHotword waits indefinitely for a broker detection addressed to this
// site (or broadcast with an empty site id).
func awaitHotword(ctx context.Context, conn MqttConn, siteID string) (mqttconn.HotwordDetected, error) {
	ch, cancel := conn.Subscribe(16)
	defer cancel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return mqttconn.HotwordDetected{}, errors.New("domain: mqtt connection closed")
			}
			if hd, isHotword := msg.(mqttconn.HotwordDetected); isHotword {
				if hd.SiteID == "" || hd.SiteID == siteID {
					return hd, nil
				}
			}
		case <-ctx.Done():
			return mqttconn.HotwordDetected{}, ctx.Err()
		}
	}
}

// Dispose implements [pipeline.WakeDomain]. The detector and source outlive
// sessions and are closed by the daemon.
func (w *Wake) Dispose() {}
