// Package pipeline contains the satellite's dialog session core: the typed
// stage results every domain produces, the domain contracts, the pipeline
// variants (local, mqtt, disabled) and the manager that runs them.
//
// Stage results are closed variant sets. Every variant carries the session id
// that produced it and a [Source] tag naming the backend it came from, so
// follow-up replies (e.g., a Say meant for this session) can be routed
// without backend-specific knowledge. Consumers type-switch over the
// interface; the compile-time assertion lists at the bottom of this file are
// the single place to extend when adding a variant.
package pipeline

// Source records which backend produced a stage result.
type Source string

const (
	SourceLocal         Source = "local"
	SourceHTTPAPI       Source = "http_api"
	SourceMQTT          Source = "mqtt"
	SourceHomeAssistant Source = "home_assistant"
	SourceWebServer     Source = "web_server"
)

// ReasonKind discriminates the closed failure-cause set.
type ReasonKind string

const (
	ReasonDisabled ReasonKind = "disabled"
	ReasonTimeout  ReasonKind = "timeout"
	ReasonError    ReasonKind = "error"
)

// Reason carries a failure cause. It is used uniformly across stage error
// variants instead of raw errors, so pipeline logic can match on the kind
// without inspecting backend-specific error values.
type Reason struct {
	Kind ReasonKind

	// Message holds the backend error text. Set only for ReasonError and
	// then never empty.
	Message string
}

// Disabled returns the feature-turned-off reason.
func Disabled() Reason { return Reason{Kind: ReasonDisabled} }

// Timeout returns the deadline-elapsed reason.
func Timeout() Reason { return Reason{Kind: ReasonTimeout} }

// Failure wraps an error into a Reason. A nil or empty error still yields a
// non-empty message so the ReasonError invariant holds.
func Failure(err error) Reason {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Reason{Kind: ReasonError, Message: msg}
}

func (r Reason) String() string {
	if r.Kind == ReasonError {
		return string(r.Kind) + ": " + r.Message
	}
	return string(r.Kind)
}

// StageResult is implemented by every stage result variant.
type StageResult interface {
	// ResultSession returns the id of the session that produced the result.
	ResultSession() string

	// ResultSource returns the backend tag.
	ResultSource() Source
}

// PipelineResult marks the stage results that may terminate a pipeline run.
// RunPipeline returns the first non-success stage result unchanged, so the
// caller sees variant + reason + source without backend knowledge.
type PipelineResult interface {
	StageResult
	pipelineResult()
}

// ─── Wake ─────────────────────────────────────────────────────────────────────

// WakeResult is produced by the Wake domain when a keyword fires.
type WakeResult struct {
	SessionID string // empty unless an external trigger supplied one
	WakeWord  string
	Source    Source
}

func (r WakeResult) ResultSession() string { return r.SessionID }
func (r WakeResult) ResultSource() Source  { return r.Source }

// ─── Transcript ───────────────────────────────────────────────────────────────

// TranscriptResult is the closed result set of the Asr stage.
type TranscriptResult interface {
	StageResult
	transcriptResult()
}

// Transcript is the success variant: recognised text.
type Transcript struct {
	SessionID string
	Text      string
	Source    Source
}

// TranscriptError is a transport or recognition failure.
type TranscriptError struct {
	SessionID string
	Reason    Reason
	Source    Source
}

// TranscriptDisabled is returned synchronously when the Asr option is off.
type TranscriptDisabled struct {
	SessionID string
	Source    Source
}

// TranscriptTimeout is returned when no transcript arrived in time.
type TranscriptTimeout struct {
	SessionID string
	Source    Source
}

func (r Transcript) ResultSession() string         { return r.SessionID }
func (r Transcript) ResultSource() Source          { return r.Source }
func (r TranscriptError) ResultSession() string    { return r.SessionID }
func (r TranscriptError) ResultSource() Source     { return r.Source }
func (r TranscriptDisabled) ResultSession() string { return r.SessionID }
func (r TranscriptDisabled) ResultSource() Source  { return r.Source }
func (r TranscriptTimeout) ResultSession() string  { return r.SessionID }
func (r TranscriptTimeout) ResultSource() Source   { return r.Source }

func (Transcript) transcriptResult()         {}
func (TranscriptError) transcriptResult()    {}
func (TranscriptDisabled) transcriptResult() {}
func (TranscriptTimeout) transcriptResult()  {}

func (TranscriptError) pipelineResult()    {}
func (TranscriptDisabled) pipelineResult() {}
func (TranscriptTimeout) pipelineResult()  {}

// ─── Intent ───────────────────────────────────────────────────────────────────

// IntentResult is the closed result set of the Intent stage. A backend that
// resolves handling internally returns [Handle] directly, skipping the
// dedicated Handle stage.
type IntentResult interface {
	StageResult
	intentResult()
}

// Intent is a recognised but not yet handled intent.
type Intent struct {
	SessionID string
	Name      string
	Slots     map[string]string
	Source    Source
}

// NotRecognized means the backend answered but found no intent.
type NotRecognized struct {
	SessionID string
	Reason    Reason
	Source    Source
}

// IntentDisabled is returned synchronously when the Intent option is off.
type IntentDisabled struct {
	SessionID string
	Source    Source
}

func (r Intent) ResultSession() string         { return r.SessionID }
func (r Intent) ResultSource() Source          { return r.Source }
func (r NotRecognized) ResultSession() string  { return r.SessionID }
func (r NotRecognized) ResultSource() Source   { return r.Source }
func (r IntentDisabled) ResultSession() string { return r.SessionID }
func (r IntentDisabled) ResultSource() Source  { return r.Source }

func (Intent) intentResult()         {}
func (NotRecognized) intentResult()  {}
func (IntentDisabled) intentResult() {}

func (NotRecognized) pipelineResult()  {}
func (IntentDisabled) pipelineResult() {}

// ─── Handle ───────────────────────────────────────────────────────────────────

// HandleResult is the closed result set of the Handle stage.
type HandleResult interface {
	StageResult
	handleResult()
}

// Handle is the success variant: text to be spoken, with an optional volume
// override from the backend.
type Handle struct {
	SessionID string
	Text      string
	Volume    *float64
	Source    Source
}

// HandleError is a transport failure or timeout during handling.
type HandleError struct {
	SessionID string
	Reason    Reason
	Source    Source
}

// NotHandled means the backend declined the intent.
type NotHandled struct {
	SessionID string
	Source    Source
}

// HandleDisabled is returned synchronously when the Handle option is off.
type HandleDisabled struct {
	SessionID string
	Source    Source
}

func (r Handle) ResultSession() string         { return r.SessionID }
func (r Handle) ResultSource() Source          { return r.Source }
func (r HandleError) ResultSession() string    { return r.SessionID }
func (r HandleError) ResultSource() Source     { return r.Source }
func (r NotHandled) ResultSession() string     { return r.SessionID }
func (r NotHandled) ResultSource() Source      { return r.Source }
func (r HandleDisabled) ResultSession() string { return r.SessionID }
func (r HandleDisabled) ResultSource() Source  { return r.Source }

func (Handle) handleResult()         {}
func (HandleError) handleResult()    {}
func (NotHandled) handleResult()     {}
func (HandleDisabled) handleResult() {}

// A resolved Handle may come straight out of the Intent stage.
func (Handle) intentResult()         {}
func (HandleError) intentResult()    {}
func (NotHandled) intentResult()     {}
func (HandleDisabled) intentResult() {}

func (HandleError) pipelineResult()    {}
func (NotHandled) pipelineResult()     {}
func (HandleDisabled) pipelineResult() {}

// ─── Tts ──────────────────────────────────────────────────────────────────────

// TtsResult is the closed result set of the Tts stage.
type TtsResult interface {
	StageResult
	ttsResult()
}

// Audio is the success variant: one synthesized WAV utterance.
type Audio struct {
	SessionID string
	Wav       []byte
	Volume    float64
	Source    Source
}

// NotSynthesized is a synthesis failure or timeout.
type NotSynthesized struct {
	SessionID string
	Reason    Reason
	Source    Source
}

// TtsDisabled is returned synchronously when the Tts option is off.
type TtsDisabled struct {
	SessionID string
	Source    Source
}

func (r Audio) ResultSession() string          { return r.SessionID }
func (r Audio) ResultSource() Source           { return r.Source }
func (r NotSynthesized) ResultSession() string { return r.SessionID }
func (r NotSynthesized) ResultSource() Source  { return r.Source }
func (r TtsDisabled) ResultSession() string    { return r.SessionID }
func (r TtsDisabled) ResultSource() Source     { return r.Source }

func (Audio) ttsResult()          {}
func (NotSynthesized) ttsResult() {}
func (TtsDisabled) ttsResult()    {}

func (NotSynthesized) pipelineResult() {}
func (TtsDisabled) pipelineResult()    {}

// ─── Snd ──────────────────────────────────────────────────────────────────────

// SndResult is the closed result set of the Snd stage. Every variant is a
// terminal pipeline result.
type SndResult interface {
	StageResult
	sndResult()
}

// Played is the success variant shared by Tts (backend already played) and
// Snd (local playback finished).
type Played struct {
	SessionID string
	Source    Source
}

// NotPlayed is a playback failure or timeout.
type NotPlayed struct {
	SessionID string
	Reason    Reason
	Source    Source
}

// PlayDisabled is returned synchronously when the Snd option is off.
type PlayDisabled struct {
	SessionID string
	Source    Source
}

func (r Played) ResultSession() string       { return r.SessionID }
func (r Played) ResultSource() Source        { return r.Source }
func (r NotPlayed) ResultSession() string    { return r.SessionID }
func (r NotPlayed) ResultSource() Source     { return r.Source }
func (r PlayDisabled) ResultSession() string { return r.SessionID }
func (r PlayDisabled) ResultSource() Source  { return r.Source }

func (Played) sndResult()       {}
func (NotPlayed) sndResult()    {}
func (PlayDisabled) sndResult() {}

// A remote Tts backend may finish with playback already done.
func (Played) ttsResult() {}

func (Played) pipelineResult()       {}
func (NotPlayed) pipelineResult()    {}
func (PlayDisabled) pipelineResult() {}

// ─── Variant registry ─────────────────────────────────────────────────────────

// Compile-time assertions keeping the variant sets honest. Adding a variant
// means extending the matching list here and every type switch that the
// compiler then flags via tests.
var (
	_ []TranscriptResult = []TranscriptResult{Transcript{}, TranscriptError{}, TranscriptDisabled{}, TranscriptTimeout{}}
	_ []IntentResult     = []IntentResult{Intent{}, Handle{}, HandleError{}, NotHandled{}, HandleDisabled{}, NotRecognized{}, IntentDisabled{}}
	_ []HandleResult     = []HandleResult{Handle{}, HandleError{}, NotHandled{}, HandleDisabled{}}
	_ []TtsResult        = []TtsResult{Audio{}, NotSynthesized{}, Played{}, TtsDisabled{}}
	_ []SndResult        = []SndResult{Played{}, NotPlayed{}, PlayDisabled{}}
)
