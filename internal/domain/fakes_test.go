package domain

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/perchlabs/perch/internal/connection/httpapi"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
)

// ─── Audio helpers ────────────────────────────────────────────────────────────

// chunkAt builds a chunk of the given duration whose every sample has the
// given amplitude, in the default capture format.
func chunkAt(amplitude int16, d time.Duration) audio.Chunk {
	f := audio.DefaultFormat
	samples := int(d * time.Duration(f.SampleRate) / time.Second)
	data := make([]byte, samples*2)
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(amplitude))
	}
	return audio.Chunk{Data: data, Format: f}
}

func voiceChunk(d time.Duration) audio.Chunk  { return chunkAt(8000, d) }
func silentChunk(d time.Duration) audio.Chunk { return chunkAt(100, d) }

// feedClosed returns a closed stream preloaded with the given chunks.
func feedClosed(chunks ...audio.Chunk) <-chan audio.Chunk {
	ch := make(chan audio.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// ─── Broker fake ──────────────────────────────────────────────────────────────

// fakeMqtt is an in-process MqttConn double: a subscriber hub plus a record
// of every publish.
type fakeMqtt struct {
	mu   sync.Mutex
	subs map[chan mqttconn.Message]struct{}

	publishErr error

	hotwords       []string
	startListening []string
	stopListening  []string
	audioFrames    [][]byte
	nluQueries     []mqttconn.NluQuery
	intents        []mqttconn.IntentParsed
	says           []mqttconn.TtsSay
	playBytes      map[string][]byte
	playFinished   []string
}

func newFakeMqtt() *fakeMqtt {
	return &fakeMqtt{
		subs:      make(map[chan mqttconn.Message]struct{}),
		playBytes: make(map[string][]byte),
	}
}

func (f *fakeMqtt) Subscribe(buffer int) (<-chan mqttconn.Message, func()) {
	ch := make(chan mqttconn.Message, buffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
}

func (f *fakeMqtt) emit(m mqttconn.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// emitSoon delivers a message after the caller has had time to subscribe.
func (f *fakeMqtt) emitSoon(m mqttconn.Message) {
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.emit(m)
	}()
}

func (f *fakeMqtt) record(do func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	do()
	return nil
}

func (f *fakeMqtt) PublishHotwordDetected(wakeWord string) error {
	return f.record(func() { f.hotwords = append(f.hotwords, wakeWord) })
}

func (f *fakeMqtt) PublishStartListening(sessionID string, _ bool) error {
	return f.record(func() { f.startListening = append(f.startListening, sessionID) })
}

func (f *fakeMqtt) PublishStopListening(sessionID string) error {
	return f.record(func() { f.stopListening = append(f.stopListening, sessionID) })
}

func (f *fakeMqtt) PublishAudioFrame(wavFrame []byte) error {
	return f.record(func() { f.audioFrames = append(f.audioFrames, wavFrame) })
}

func (f *fakeMqtt) PublishNluQuery(sessionID, input string) error {
	return f.record(func() {
		f.nluQueries = append(f.nluQueries, mqttconn.NluQuery{Input: input, SessionID: sessionID})
	})
}

func (f *fakeMqtt) PublishIntent(sessionID, input, intentName string, confidence float64, slots map[string]string) error {
	return f.record(func() {
		parsed := mqttconn.IntentParsed{Input: input, SessionID: sessionID}
		parsed.Intent.IntentName = intentName
		parsed.Intent.Confidence = confidence
		f.intents = append(f.intents, parsed)
	})
}

func (f *fakeMqtt) PublishSay(sessionID, text string, volume float64) error {
	return f.record(func() {
		f.says = append(f.says, mqttconn.TtsSay{Text: text, Volume: &volume, SessionID: sessionID})
	})
}

func (f *fakeMqtt) PublishPlayBytes(requestID string, wav []byte) error {
	return f.record(func() { f.playBytes[requestID] = wav })
}

func (f *fakeMqtt) PublishPlayFinished(requestID string) error {
	return f.record(func() { f.playFinished = append(f.playFinished, requestID) })
}

// ─── HTTP server fake ─────────────────────────────────────────────────────────

type fakeHTTP struct {
	speechToTextFunc    func(ctx context.Context, wav []byte) (string, error)
	recognizeIntentFunc func(ctx context.Context, text string) (httpapi.RecognizedIntent, error)
	handleIntentFunc    func(ctx context.Context, intentJSON []byte) (string, error)
	textToSpeechFunc    func(ctx context.Context, text string, volume float64) ([]byte, error)
	playWavFunc         func(ctx context.Context, wav []byte) error
}

func (f *fakeHTTP) SpeechToText(ctx context.Context, wav []byte) (string, error) {
	return f.speechToTextFunc(ctx, wav)
}

func (f *fakeHTTP) RecognizeIntent(ctx context.Context, text string) (httpapi.RecognizedIntent, error) {
	return f.recognizeIntentFunc(ctx, text)
}

func (f *fakeHTTP) HandleIntent(ctx context.Context, intentJSON []byte) (string, error) {
	return f.handleIntentFunc(ctx, intentJSON)
}

func (f *fakeHTTP) TextToSpeech(ctx context.Context, text string, volume float64) ([]byte, error) {
	return f.textToSpeechFunc(ctx, text, volume)
}

func (f *fakeHTTP) PlayWav(ctx context.Context, wav []byte) error {
	return f.playWavFunc(ctx, wav)
}

// ─── HomeAssistant fake ───────────────────────────────────────────────────────

type haCall struct {
	name      string
	sessionID string
	slots     map[string]string
}

type fakeHA struct {
	mu        sync.Mutex
	reply     string
	intentErr error
	eventErr  error
	intents   []haCall
	events    []haCall
}

func (f *fakeHA) HandleIntent(_ context.Context, name string, slots map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, haCall{name: name, slots: slots})
	if f.intentErr != nil {
		return "", f.intentErr
	}
	return f.reply, nil
}

func (f *fakeHA) FireEvent(_ context.Context, name, sessionID, _ string, slots map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, haCall{name: name, sessionID: sessionID, slots: slots})
	return f.eventErr
}

// ─── Web server say fake ──────────────────────────────────────────────────────

type fakeSay struct {
	mu   sync.Mutex
	subs map[chan SayCommand]struct{}
}

func newFakeSay() *fakeSay {
	return &fakeSay{subs: make(map[chan SayCommand]struct{})}
}

func (f *fakeSay) SubscribeSay() (<-chan SayCommand, func()) {
	ch := make(chan SayCommand, 8)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
}

func (f *fakeSay) emitSoon(cmd SayCommand) {
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.mu.Lock()
		defer f.mu.Unlock()
		for ch := range f.subs {
			select {
			case ch <- cmd:
			default:
			}
		}
	}()
}

// ─── History fake ─────────────────────────────────────────────────────────────

type historyEntry struct {
	sessionID string
	input     pipeline.StageResult
	result    pipeline.StageResult
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []historyEntry
}

func (f *fakeHistory) AddToHistory(sessionID string, input, result pipeline.StageResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, historyEntry{sessionID: sessionID, input: input, result: result})
}

func (f *fakeHistory) snapshot() []historyEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]historyEntry, len(f.entries))
	copy(out, f.entries)
	return out
}
