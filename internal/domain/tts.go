package domain

import (
	"context"
	"errors"
	"time"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/provider/tts"
)

// Tts implements [pipeline.TtsDomain]: handle text in, one WAV utterance
// out. The mqtt option delegates both synthesis and playback to the remote
// site, so its success variant is Played rather than Audio.
type Tts struct {
	cfg         config.TtsConfig
	synthesizer tts.Synthesizer
	http        HTTPConn
	conn        MqttConn
	history     pipeline.DomainHistory
}

var _ pipeline.TtsDomain = (*Tts)(nil)

// NewTts builds the Tts domain for one session.
func NewTts(cfg config.TtsConfig, synthesizer tts.Synthesizer, http HTTPConn, conn MqttConn, history pipeline.DomainHistory) *Tts {
	return &Tts{cfg: cfg, synthesizer: synthesizer, http: http, conn: conn, history: history}
}

// AwaitSynthesize implements [pipeline.TtsDomain]. A handle-level volume
// override takes precedence over the satellite volume.
func (d *Tts) AwaitSynthesize(ctx context.Context, handle pipeline.Handle, volume float64, siteID string) pipeline.TtsResult {
	sessionID := handle.SessionID
	if handle.Volume != nil {
		volume = *handle.Volume
	}

	var result pipeline.TtsResult
	switch {
	case d.cfg.Option == config.OptionDisabled:
		result = pipeline.TtsDisabled{SessionID: sessionID, Source: pipeline.SourceLocal}
	case handle.Text == "":
		// Handled without a spoken answer; nothing to synthesize.
		result = pipeline.Played{SessionID: sessionID, Source: handle.Source}
	case d.cfg.Option == config.OptionMQTT:
		result = d.sayRemote(ctx, sessionID, handle.Text, volume)
	case d.cfg.Option == config.OptionHTTP:
		result = d.synthesizeHTTP(ctx, sessionID, handle.Text, volume)
	default: // local
		result = d.synthesizeLocal(ctx, sessionID, handle.Text, volume)
	}
	addHistory(d.history, sessionID, handle, result)
	return result
}

func (d *Tts) synthesizeLocal(ctx context.Context, sessionID, text string, volume float64) pipeline.TtsResult {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	wav, _, err := d.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return classifyTtsErr(err, sessionID, pipeline.SourceLocal)
	}
	return pipeline.Audio{SessionID: sessionID, Wav: wav, Volume: volume, Source: pipeline.SourceLocal}
}

func (d *Tts) synthesizeHTTP(ctx context.Context, sessionID, text string, volume float64) pipeline.TtsResult {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	wav, err := d.http.TextToSpeech(ctx, text, volume)
	if err != nil {
		return classifyTtsErr(err, sessionID, pipeline.SourceHTTPAPI)
	}
	return pipeline.Audio{SessionID: sessionID, Wav: wav, Volume: volume, Source: pipeline.SourceHTTPAPI}
}

// sayRemote publishes a Say and waits for the remote site to finish
// speaking.
func (d *Tts) sayRemote(ctx context.Context, sessionID, text string, volume float64) pipeline.TtsResult {
	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	_, err := mqttconn.RequestReply(ctx, d.conn, timeout,
		func() error { return d.conn.PublishSay(sessionID, text, volume) },
		func(m mqttconn.TtsSayFinished) bool { return m.SessionID == sessionID },
	)
	if err != nil {
		return classifyTtsErr(err, sessionID, pipeline.SourceMQTT)
	}
	return pipeline.Played{SessionID: sessionID, Source: pipeline.SourceMQTT}
}

func classifyTtsErr(err error, sessionID string, source pipeline.Source) pipeline.TtsResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mqttconn.ErrAwaitTimeout) {
		return pipeline.NotSynthesized{SessionID: sessionID, Reason: pipeline.Timeout(), Source: source}
	}
	return pipeline.NotSynthesized{SessionID: sessionID, Reason: pipeline.Failure(err), Source: source}
}

// Dispose implements [pipeline.TtsDomain]. The synthesizer is process-wide
// and closed by the daemon.
func (d *Tts) Dispose() {}
