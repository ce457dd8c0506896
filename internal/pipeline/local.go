package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Pipeline runs one full voice session and returns its terminal result.
// Variants differ in which domain/connection combination drives the session
// and who owns audio-focus arbitration; the contract is shared.
type Pipeline interface {
	RunPipeline(ctx context.Context, start StartEvent) PipelineResult
}

// Local runs one session entirely through the bundle's domains, chaining
// stage results and aborting on the first non-success variant. Stages run
// strictly in order; no stage is invoked for a session whose prior required
// stage failed.
type Local struct {
	domains *DomainBundle
	focus   AudioFocus
	volume  float64
	siteID  string
}

var _ Pipeline = (*Local)(nil)

// NewLocal builds the local variant around a per-session domain bundle.
func NewLocal(domains *DomainBundle, focus AudioFocus, volume float64, siteID string) *Local {
	return &Local{domains: domains, focus: focus, volume: volume, siteID: siteID}
}

// newSessionID generates a fresh session identifier.
func newSessionID() string { return uuid.NewString() }

// RunPipeline executes the stage chain for one session. The bundle is
// disposed on every exit path, and "record" focus is released as soon as the
// transcript stage exits, success or not.
func (p *Local) RunPipeline(ctx context.Context, start StartEvent) PipelineResult {
	// Use the session id from the event or create our own.
	sessionID := start.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	log := slog.With("session_id", sessionID, "pipeline", "local")
	log.Debug("pipeline run starting", "wake_word", start.WakeWord)

	defer p.domains.Dispose()

	// Transcribe audio to text from voice start till voice stop.
	transcript, terminal := p.awaitTranscript(ctx, sessionID)
	if terminal != nil {
		log.Debug("pipeline ended at transcript stage", "result", terminal)
		return terminal
	}

	// Find the intent from text; the backend may have handled it already.
	intent := p.domains.Intent.AwaitIntent(ctx, transcript)

	var handle Handle
	switch r := intent.(type) {
	case Handle:
		handle = r
	case Intent:
		switch h := p.domains.Handle.AwaitIntentHandle(ctx, r).(type) {
		case Handle:
			handle = h
		case HandleError:
			return h
		case NotHandled:
			return h
		case HandleDisabled:
			return h
		}
	case HandleError:
		return r
	case NotHandled:
		return r
	case HandleDisabled:
		return r
	case NotRecognized:
		return r
	case IntentDisabled:
		return r
	}

	// Translate the handle text to speech.
	var ttsAudio Audio
	switch r := p.domains.Tts.AwaitSynthesize(ctx, handle, p.volume, p.siteID).(type) {
	case Audio:
		ttsAudio = r
	case NotSynthesized:
		return r
	case Played:
		return r
	case TtsDisabled:
		return r
	}

	// Play the audio; the snd result is the pipeline's final result.
	switch r := p.domains.Snd.AwaitPlayAudio(ctx, ttsAudio).(type) {
	case Played:
		return r
	case NotPlayed:
		return r
	case PlayDisabled:
		return r
	}

	// Unreachable while the SndResult set holds.
	return NotPlayed{SessionID: sessionID, Reason: Failure(nil), Source: SourceLocal}
}

// awaitTranscript runs mic + vad + asr and returns either the transcript or
// the terminal pipeline result ending the run. Record focus is acquired for
// the capture and released on every exit path.
func (p *Local) awaitTranscript(ctx context.Context, sessionID string) (Transcript, PipelineResult) {
	if err := p.focus.Request(FocusRecord); err != nil {
		return Transcript{}, TranscriptError{SessionID: sessionID, Reason: Failure(err), Source: SourceLocal}
	}
	defer p.focus.Abandon(FocusRecord)

	stream, err := p.domains.Mic.AudioStream(ctx)
	if err != nil {
		return Transcript{}, TranscriptError{SessionID: sessionID, Reason: Failure(err), Source: SourceLocal}
	}

	switch r := p.domains.Asr.AwaitTranscript(ctx, sessionID, stream, p.domains.Vad).(type) {
	case Transcript:
		return r, nil
	case TranscriptError:
		return Transcript{}, r
	case TranscriptDisabled:
		return Transcript{}, r
	case TranscriptTimeout:
		return Transcript{}, r
	}
	return Transcript{}, TranscriptError{SessionID: sessionID, Reason: Failure(nil), Source: SourceLocal}
}
