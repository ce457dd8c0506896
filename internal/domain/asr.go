package domain

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/asr"
)

// Asr implements [pipeline.AsrDomain]: it turns the session's voice into a
// transcript with the configured backend, recording the captured audio to
// file storage along the way.
type Asr struct {
	cfg         config.AsrConfig
	siteID      string
	transcriber asr.Transcriber
	http        HTTPConn
	conn        MqttConn
	storage     *audio.FileStorage
	indicator   pipeline.Indicator
	history     pipeline.DomainHistory
}

var _ pipeline.AsrDomain = (*Asr)(nil)

// NewAsr builds the Asr domain for one session. transcriber is required for
// the local option, http for the http option, conn for the mqtt option;
// storage, indicator, and history are optional.
func NewAsr(cfg config.AsrConfig, siteID string, transcriber asr.Transcriber, http HTTPConn, conn MqttConn, storage *audio.FileStorage, indicator pipeline.Indicator, history pipeline.DomainHistory) *Asr {
	return &Asr{
		cfg:         cfg,
		siteID:      siteID,
		transcriber: transcriber,
		http:        http,
		conn:        conn,
		storage:     storage,
		indicator:   indicator,
		history:     history,
	}
}

// AwaitTranscript implements [pipeline.AsrDomain].
func (a *Asr) AwaitTranscript(ctx context.Context, sessionID string, stream <-chan audio.Chunk, vad pipeline.VadDomain) pipeline.TranscriptResult {
	if a.cfg.Option == config.OptionDisabled {
		result := pipeline.TranscriptDisabled{SessionID: sessionID, Source: pipeline.SourceLocal}
		addHistory(a.history, sessionID, nil, result)
		return result
	}

	if a.indicator != nil {
		a.indicator.OnListening()
	}

	stageCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	var result pipeline.TranscriptResult
	switch a.cfg.Option {
	case config.OptionMQTT:
		result = a.transcribeRemote(stageCtx, sessionID, stream)
	default: // local, http
		result = a.transcribeCaptured(stageCtx, sessionID, stream, vad)
	}
	addHistory(a.history, sessionID, nil, result)
	return result
}

// transcribeCaptured records until VAD declares silence, then hands the
// whole recording to the local or remote transcriber.
func (a *Asr) transcribeCaptured(ctx context.Context, sessionID string, stream <-chan audio.Chunk, vad pipeline.VadDomain) pipeline.TranscriptResult {
	source := pipeline.SourceLocal
	if a.cfg.Option == config.OptionHTTP {
		source = pipeline.SourceHTTPAPI
	}

	pcm, format, err := a.capture(ctx, sessionID, stream, vad)
	if err != nil {
		return classifyTranscriptErr(err, sessionID, source)
	}
	if len(pcm) == 0 {
		return pipeline.TranscriptError{SessionID: sessionID, Reason: pipeline.Failure(errors.New("empty recording")), Source: source}
	}

	a.broadcastCaptured(pcm, format)

	var text string
	switch a.cfg.Option {
	case config.OptionHTTP:
		wav, encErr := audio.EncodeWav(pcm, format)
		if encErr != nil {
			return pipeline.TranscriptError{SessionID: sessionID, Reason: pipeline.Failure(encErr), Source: source}
		}
		text, err = a.http.SpeechToText(ctx, wav)
	default:
		text, err = a.transcriber.Transcribe(ctx, pcm, format)
	}
	if err != nil {
		return classifyTranscriptErr(err, sessionID, source)
	}
	return pipeline.Transcript{SessionID: sessionID, Text: text, Source: source}
}

// capture runs the VAD-gated recording and mirrors it to file storage.
func (a *Asr) capture(ctx context.Context, sessionID string, stream <-chan audio.Chunk, vad pipeline.VadDomain) ([]byte, audio.Format, error) {
	if err := vad.AwaitVoiceStart(ctx, stream); err != nil {
		return nil, audio.Format{}, err
	}

	var (
		buf    bytes.Buffer
		format audio.Format
		writer *audio.WavWriter
	)
	if a.storage != nil {
		defer func() {
			if writer != nil {
				if err := writer.Close(); err != nil {
					slog.Warn("closing session recording failed", "session_id", sessionID, "error", err)
				}
			}
		}()
	}

	observe := func(c audio.Chunk) {
		format = c.Format
		buf.Write(c.Data)
		if a.storage != nil && writer == nil {
			w, err := a.storage.NewWriter(sessionID, c.Format)
			if err != nil {
				slog.Warn("session recording unavailable", "session_id", sessionID, "error", err)
				a.storage = nil
				return
			}
			writer = w
		}
		if writer != nil {
			if err := writer.WriteChunk(c); err != nil {
				slog.Warn("session recording write failed", "session_id", sessionID, "error", err)
			}
		}
	}

	err := vad.AwaitVoiceStopped(ctx, stream, observe)
	return buf.Bytes(), format, err
}

// broadcastCaptured publishes the whole recording on the audio topic when
// configured to.
func (a *Asr) broadcastCaptured(pcm []byte, format audio.Format) {
	if !a.cfg.SendAudioCaptured || a.conn == nil {
		return
	}
	wav, err := audio.EncodeWav(pcm, format)
	if err != nil {
		slog.Warn("encoding captured audio failed", "error", err)
		return
	}
	if err := a.conn.PublishAudioFrame(wav); err != nil {
		slog.Warn("publishing captured audio failed", "error", err)
	}
}

// transcribeRemote streams frames to the broker ASR and waits for its
// verdict. The remote side decides when speech ended (stop on silence).
func (a *Asr) transcribeRemote(ctx context.Context, sessionID string, stream <-chan audio.Chunk) pipeline.TranscriptResult {
	timeout := a.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ch, cancelSub := a.conn.Subscribe(16)
	defer cancelSub()

	if err := a.conn.PublishStartListening(sessionID, a.cfg.SendAudioCaptured); err != nil {
		return pipeline.TranscriptError{SessionID: sessionID, Reason: pipeline.Failure(err), Source: pipeline.SourceMQTT}
	}
	defer func() {
		if err := a.conn.PublishStopListening(sessionID); err != nil {
			slog.Warn("stop listening publish failed", "session_id", sessionID, "error", err)
		}
	}()

	// Pump capture frames to the broker until the verdict arrives.
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	go a.pumpFrames(pumpCtx, stream)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return pipeline.TranscriptError{SessionID: sessionID, Reason: pipeline.Failure(errors.New("mqtt connection closed")), Source: pipeline.SourceMQTT}
			}
			switch m := msg.(type) {
			case mqttconn.AsrTextCaptured:
				if m.SessionID == sessionID {
					return pipeline.Transcript{SessionID: sessionID, Text: m.Text, Source: pipeline.SourceMQTT}
				}
			case mqttconn.AsrError:
				if m.SessionID == sessionID {
					return pipeline.TranscriptError{SessionID: sessionID, Reason: pipeline.Failure(errors.New(m.Error)), Source: pipeline.SourceMQTT}
				}
			}
		case <-timer.C:
			return pipeline.TranscriptTimeout{SessionID: sessionID, Source: pipeline.SourceMQTT}
		case <-ctx.Done():
			return classifyTranscriptErr(ctx.Err(), sessionID, pipeline.SourceMQTT)
		}
	}
}

func (a *Asr) pumpFrames(ctx context.Context, stream <-chan audio.Chunk) {
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return
			}
			frame, err := audio.EncodeWav(chunk.Data, chunk.Format)
			if err != nil {
				continue
			}
			if err := a.conn.PublishAudioFrame(frame); err != nil {
				slog.Debug("audio frame publish failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// classifyTranscriptErr maps wait/transport errors onto the transcript
// result variants.
func classifyTranscriptErr(err error, sessionID string, source pipeline.Source) pipeline.TranscriptResult {
	switch {
	case errors.Is(err, ErrVoiceTimeout), errors.Is(err, context.DeadlineExceeded):
		return pipeline.TranscriptTimeout{SessionID: sessionID, Source: source}
	default:
		return pipeline.TranscriptError{SessionID: sessionID, Reason: pipeline.Failure(err), Source: source}
	}
}

// Dispose implements [pipeline.AsrDomain]. The transcriber is process-wide
// and closed by the daemon.
func (a *Asr) Dispose() {}

// addHistory appends a stage outcome when a history sink is configured.
func addHistory(h pipeline.DomainHistory, sessionID string, input, result pipeline.StageResult) {
	if h != nil {
		h.AddToHistory(sessionID, input, result)
	}
}
