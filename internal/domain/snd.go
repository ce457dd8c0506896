package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/provider/snd"
)

// Snd implements [pipeline.SndDomain]: it plays one synthesized utterance
// through the configured output. Local playback holds the playback focus for
// its duration.
type Snd struct {
	cfg       config.SndConfig
	player    snd.Player
	http      HTTPConn
	conn      MqttConn
	focus     pipeline.AudioFocus
	indicator pipeline.Indicator
	history   pipeline.DomainHistory
}

var _ pipeline.SndDomain = (*Snd)(nil)

// NewSnd builds the Snd domain for one session.
func NewSnd(cfg config.SndConfig, player snd.Player, http HTTPConn, conn MqttConn, focus pipeline.AudioFocus, indicator pipeline.Indicator, history pipeline.DomainHistory) *Snd {
	return &Snd{
		cfg:       cfg,
		player:    player,
		http:      http,
		conn:      conn,
		focus:     focus,
		indicator: indicator,
		history:   history,
	}
}

// AwaitPlayAudio implements [pipeline.SndDomain].
func (d *Snd) AwaitPlayAudio(ctx context.Context, a pipeline.Audio) pipeline.SndResult {
	sessionID := a.SessionID

	if d.cfg.Option == config.OptionDisabled {
		result := pipeline.PlayDisabled{SessionID: sessionID, Source: pipeline.SourceLocal}
		addHistory(d.history, sessionID, a, result)
		return result
	}

	if d.indicator != nil {
		d.indicator.OnSpeaking()
	}

	var result pipeline.SndResult
	switch d.cfg.Option {
	case config.OptionHTTP:
		result = d.playHTTP(ctx, a)
	case config.OptionMQTT:
		result = d.playRemote(ctx, a)
	default: // local
		result = d.playLocal(ctx, a)
	}
	addHistory(d.history, sessionID, a, result)
	return result
}

func (d *Snd) playLocal(ctx context.Context, a pipeline.Audio) pipeline.SndResult {
	if err := d.focus.Request(pipeline.FocusPlayback); err != nil {
		return pipeline.NotPlayed{SessionID: a.SessionID, Reason: pipeline.Failure(err), Source: pipeline.SourceLocal}
	}
	defer d.focus.Abandon(pipeline.FocusPlayback)

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	if err := d.player.Play(ctx, a.Wav, a.Volume); err != nil {
		return classifySndErr(err, a.SessionID, pipeline.SourceLocal)
	}
	return pipeline.Played{SessionID: a.SessionID, Source: pipeline.SourceLocal}
}

func (d *Snd) playHTTP(ctx context.Context, a pipeline.Audio) pipeline.SndResult {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	if err := d.http.PlayWav(ctx, a.Wav); err != nil {
		return classifySndErr(err, a.SessionID, pipeline.SourceHTTPAPI)
	}
	return pipeline.Played{SessionID: a.SessionID, Source: pipeline.SourceHTTPAPI}
}

// playRemote publishes the audio to the site's remote audio server and waits
// for its play-finished confirmation.
func (d *Snd) playRemote(ctx context.Context, a pipeline.Audio) pipeline.SndResult {
	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	requestID := uuid.NewString()

	_, err := mqttconn.RequestReply(ctx, d.conn, timeout,
		func() error { return d.conn.PublishPlayBytes(requestID, a.Wav) },
		func(m mqttconn.PlayFinished) bool { return m.ID == requestID },
	)
	if err != nil {
		return classifySndErr(err, a.SessionID, pipeline.SourceMQTT)
	}
	return pipeline.Played{SessionID: a.SessionID, Source: pipeline.SourceMQTT}
}

func classifySndErr(err error, sessionID string, source pipeline.Source) pipeline.SndResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mqttconn.ErrAwaitTimeout) {
		return pipeline.NotPlayed{SessionID: sessionID, Reason: pipeline.Timeout(), Source: source}
	}
	return pipeline.NotPlayed{SessionID: sessionID, Reason: pipeline.Failure(err), Source: source}
}

// Dispose implements [pipeline.SndDomain]. The player is process-wide and
// closed by the daemon.
func (d *Snd) Dispose() {}
