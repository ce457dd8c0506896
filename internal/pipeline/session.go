package pipeline

import (
	"context"

	"github.com/perchlabs/perch/pkg/audio"
)

// StartEvent triggers one pipeline run. SessionID is empty unless an
// external trigger (MQTT dialogue manager, web server) supplied one.
type StartEvent struct {
	SessionID string
	WakeWord  string
}

// SessionData identifies one end-to-end voice interaction. It is created at
// the start of RunPipeline and discarded when the run ends.
type SessionData struct {
	SessionID string

	// WakeWord names the detected keyword, if any.
	WakeWord string

	// RecognizedText is filled once the transcript stage succeeds.
	RecognizedText string

	// SendAudioCaptured controls whether raw captured audio is also
	// broadcast externally.
	SendAudioCaptured bool
}

// FocusReason names the shared audio resource a stage holds.
type FocusReason string

const (
	FocusRecord   FocusReason = "record"
	FocusPlayback FocusReason = "playback"
)

// AudioFocus arbitrates the device's record and playback resources. Only one
// holder per reason at a time; release is a guaranteed cleanup step on every
// pipeline exit path, including cancellation.
type AudioFocus interface {
	Request(reason FocusReason) error
	Abandon(reason FocusReason)
}

// Indicator receives pipeline state callbacks for visual/audio feedback.
// Implementations must be non-blocking.
type Indicator interface {
	OnIdle()
	OnWakeup()
	OnListening()
	OnThinking()
	OnSpeaking()
}

// DomainHistory is the append-only event log of stage outcomes. AddToHistory
// must be safe for concurrent calls from independent sessions; ordering
// across sessions is insertion order, not causal order.
type DomainHistory interface {
	AddToHistory(sessionID string, input StageResult, result StageResult)
}

// ─── Domain contracts ─────────────────────────────────────────────────────────
//
// One interface per pipeline stage. Implementations never return raw errors
// across these boundaries (except the Vad signals, which only distinguish
// "signal fired" from "cancelled/timed out"); failures become typed result
// variants. Dispose releases per-session resources and must be safe to call
// on every exit path.

// WakeDomain waits for a wake word.
type WakeDomain interface {
	// AwaitDetection blocks until a keyword fires or ctx ends.
	AwaitDetection(ctx context.Context) (WakeResult, error)
	Dispose()
}

// MicDomain owns the capture stream for one session.
type MicDomain interface {
	// AudioStream starts (or returns the already-started) capture stream.
	AudioStream(ctx context.Context) (<-chan audio.Chunk, error)
	Format() audio.Format
	Dispose()
}

// VadDomain detects voice boundaries within an audio stream.
type VadDomain interface {
	// AwaitVoiceStart consumes chunks until voice begins.
	AwaitVoiceStart(ctx context.Context, stream <-chan audio.Chunk) error

	// AwaitVoiceStopped consumes chunks until sustained silence follows
	// speech. Each observed chunk is also forwarded to observe, letting the
	// Asr domain accumulate exactly the chunks VAD has seen.
	AwaitVoiceStopped(ctx context.Context, stream <-chan audio.Chunk, observe func(audio.Chunk)) error

	Dispose()
}

// AsrDomain produces the session transcript.
type AsrDomain interface {
	AwaitTranscript(ctx context.Context, sessionID string, stream <-chan audio.Chunk, vad VadDomain) TranscriptResult
	Dispose()
}

// IntentDomain recognises an intent from a transcript.
type IntentDomain interface {
	AwaitIntent(ctx context.Context, transcript Transcript) IntentResult
	Dispose()
}

// HandleDomain executes a recognised intent.
type HandleDomain interface {
	AwaitIntentHandle(ctx context.Context, intent Intent) HandleResult
	Dispose()
}

// TtsDomain synthesizes the handle text.
type TtsDomain interface {
	AwaitSynthesize(ctx context.Context, handle Handle, volume float64, siteID string) TtsResult
	Dispose()
}

// SndDomain plays synthesized audio.
type SndDomain interface {
	AwaitPlayAudio(ctx context.Context, a Audio) SndResult
	Dispose()
}

// DomainBundle groups the per-session domain instances a pipeline variant
// consumes. The bundle is built fresh for each run from a configuration
// snapshot and disposed when the run ends, success or failure.
type DomainBundle struct {
	Wake   WakeDomain
	Mic    MicDomain
	Vad    VadDomain
	Asr    AsrDomain
	Intent IntentDomain
	Handle HandleDomain
	Tts    TtsDomain
	Snd    SndDomain
}

// Dispose releases every domain in the bundle. Nil members are skipped so
// partially-built bundles can be cleaned up after a construction failure.
func (b *DomainBundle) Dispose() {
	for _, d := range []interface{ Dispose() }{
		b.Wake, b.Mic, b.Vad, b.Asr, b.Intent, b.Handle, b.Tts, b.Snd,
	} {
		if d != nil {
			d.Dispose()
		}
	}
}
