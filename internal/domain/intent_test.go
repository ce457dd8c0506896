package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/httpapi"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
)

func intentConfig(option config.Option) config.IntentConfig {
	return config.IntentConfig{
		Option: option,
		Sentences: []config.IntentSentences{
			{Intent: "LightOn", Examples: []string{"turn on the light", "lights on"}},
			{Intent: "GetTime", Examples: []string{"what time is it"}},
		},
	}
}

func transcriptFor(text string) pipeline.Transcript {
	return pipeline.Transcript{SessionID: "s1", Text: text, Source: pipeline.SourceLocal}
}

func TestIntentDisabled(t *testing.T) {
	d := NewIntent(intentConfig(config.OptionDisabled), nil, nil, nil)

	result := d.AwaitIntent(context.Background(), transcriptFor("turn on the light"))

	if _, ok := result.(pipeline.IntentDisabled); !ok {
		t.Fatalf("result = %T, want IntentDisabled", result)
	}
}

func TestIntentLocalRecognition(t *testing.T) {
	d := NewIntent(intentConfig(config.OptionLocal), nil, nil, nil)

	tests := []struct {
		name string
		text string
		want string // intent name, "" for not recognized
	}{
		{name: "exact match", text: "turn on the light", want: "LightOn"},
		{name: "case and spacing ignored", text: "  Turn ON the Light ", want: "LightOn"},
		{name: "near match", text: "turn on the lights", want: "LightOn"},
		{name: "second intent", text: "what time is it", want: "GetTime"},
		{name: "gibberish", text: "zzz qqq xxx", want: ""},
		{name: "empty transcript", text: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := d.AwaitIntent(context.Background(), transcriptFor(tc.text))
			if tc.want == "" {
				if _, ok := result.(pipeline.NotRecognized); !ok {
					t.Fatalf("result = %T, want NotRecognized", result)
				}
				return
			}
			intent, ok := result.(pipeline.Intent)
			if !ok {
				t.Fatalf("result = %T, want Intent", result)
			}
			if intent.Name != tc.want {
				t.Errorf("Name = %q, want %q", intent.Name, tc.want)
			}
		})
	}
}

func TestIntentLocalMinScore(t *testing.T) {
	cfg := intentConfig(config.OptionLocal)
	cfg.MinScore = 0.999
	d := NewIntent(cfg, nil, nil, nil)

	// A near match that clears the default bar must fail a stricter one.
	if _, ok := d.AwaitIntent(context.Background(), transcriptFor("turn on the lights")).(pipeline.NotRecognized); !ok {
		t.Fatal("want NotRecognized below the configured minimum score")
	}
}

func TestIntentLocalAnnouncesOnBroker(t *testing.T) {
	conn := newFakeMqtt()
	d := NewIntent(intentConfig(config.OptionLocal), nil, conn, nil)

	result := d.AwaitIntent(context.Background(), transcriptFor("turn on the light"))

	if _, ok := result.(pipeline.Intent); !ok {
		t.Fatalf("result = %T, want Intent", result)
	}
	if len(conn.intents) != 1 {
		t.Fatalf("published intents = %d, want 1", len(conn.intents))
	}
	announced := conn.intents[0]
	if announced.Intent.IntentName != "LightOn" || announced.SessionID != "s1" {
		t.Errorf("announced = %+v", announced)
	}
	if announced.Input != "turn on the light" {
		t.Errorf("Input = %q", announced.Input)
	}
}

func TestIntentLocalNotRecognizedStaysSilent(t *testing.T) {
	conn := newFakeMqtt()
	d := NewIntent(intentConfig(config.OptionLocal), nil, conn, nil)

	if _, ok := d.AwaitIntent(context.Background(), transcriptFor("zzz qqq xxx")).(pipeline.NotRecognized); !ok {
		t.Fatal("want NotRecognized")
	}
	if len(conn.intents) != 0 {
		t.Errorf("published intents = %d, want none for a miss", len(conn.intents))
	}
}

func TestIntentHTTP(t *testing.T) {
	http := &fakeHTTP{
		recognizeIntentFunc: func(_ context.Context, text string) (httpapi.RecognizedIntent, error) {
			return httpapi.RecognizedIntent{Name: "LightOn", Slots: map[string]string{"room": "kitchen"}}, nil
		},
	}
	d := NewIntent(intentConfig(config.OptionHTTP), http, nil, nil)

	result := d.AwaitIntent(context.Background(), transcriptFor("turn on the kitchen light"))

	intent, ok := result.(pipeline.Intent)
	if !ok {
		t.Fatalf("result = %T, want Intent", result)
	}
	if intent.Name != "LightOn" || intent.Slots["room"] != "kitchen" {
		t.Errorf("intent = %+v", intent)
	}
	if intent.Source != pipeline.SourceHTTPAPI {
		t.Errorf("Source = %q, want http_api", intent.Source)
	}
}

func TestIntentHTTPEmptyNameIsNotRecognized(t *testing.T) {
	http := &fakeHTTP{
		recognizeIntentFunc: func(context.Context, string) (httpapi.RecognizedIntent, error) {
			return httpapi.RecognizedIntent{}, nil
		},
	}
	d := NewIntent(intentConfig(config.OptionHTTP), http, nil, nil)

	if _, ok := d.AwaitIntent(context.Background(), transcriptFor("mumble")).(pipeline.NotRecognized); !ok {
		t.Fatal("want NotRecognized for an empty intent name")
	}
}

func TestIntentHTTPError(t *testing.T) {
	http := &fakeHTTP{
		recognizeIntentFunc: func(context.Context, string) (httpapi.RecognizedIntent, error) {
			return httpapi.RecognizedIntent{}, errors.New("nlu down")
		},
	}
	d := NewIntent(intentConfig(config.OptionHTTP), http, nil, nil)

	result := d.AwaitIntent(context.Background(), transcriptFor("turn on the light"))

	nr, ok := result.(pipeline.NotRecognized)
	if !ok {
		t.Fatalf("result = %T, want NotRecognized", result)
	}
	if nr.Reason.Message == "" {
		t.Error("Reason.Message is empty, want the transport failure")
	}
}

func TestIntentRemote(t *testing.T) {
	conn := newFakeMqtt()
	d := NewIntent(intentConfig(config.OptionMQTT), nil, conn, nil)

	decoy := mqttconn.IntentParsed{SessionID: "other"}
	decoy.Intent.IntentName = "WrongIntent"
	conn.emitSoon(decoy)

	answer := mqttconn.IntentParsed{
		SessionID: "s1",
		Slots:     []mqttconn.IntentSlot{{SlotName: "room", RawValue: "kitchen"}},
	}
	answer.Intent.IntentName = "LightOn"
	go func() {
		time.Sleep(60 * time.Millisecond)
		conn.emit(answer)
	}()

	result := d.AwaitIntent(context.Background(), transcriptFor("turn on the kitchen light"))

	intent, ok := result.(pipeline.Intent)
	if !ok {
		t.Fatalf("result = %T, want Intent", result)
	}
	if intent.Name != "LightOn" || intent.Slots["room"] != "kitchen" {
		t.Errorf("intent = %+v", intent)
	}
	if intent.Source != pipeline.SourceMQTT {
		t.Errorf("Source = %q, want mqtt", intent.Source)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.nluQueries) != 1 || conn.nluQueries[0].SessionID != "s1" {
		t.Errorf("nluQueries = %+v, want one query for s1", conn.nluQueries)
	}
}

func TestIntentRemoteNotRecognized(t *testing.T) {
	conn := newFakeMqtt()
	d := NewIntent(intentConfig(config.OptionMQTT), nil, conn, nil)

	conn.emitSoon(mqttconn.IntentNotRecognized{Input: "mumble", SessionID: "s1"})

	if _, ok := d.AwaitIntent(context.Background(), transcriptFor("mumble")).(pipeline.NotRecognized); !ok {
		t.Fatal("want NotRecognized")
	}
}

func TestIntentRemoteTimeout(t *testing.T) {
	cfg := intentConfig(config.OptionMQTT)
	cfg.Timeout = 50 * time.Millisecond
	conn := newFakeMqtt()
	d := NewIntent(cfg, nil, conn, nil)

	result := d.AwaitIntent(context.Background(), transcriptFor("anyone there"))

	nr, ok := result.(pipeline.NotRecognized)
	if !ok {
		t.Fatalf("result = %T, want NotRecognized", result)
	}
	if nr.Reason.Kind != pipeline.ReasonTimeout {
		t.Errorf("Reason.Kind = %q, want timeout", nr.Reason.Kind)
	}
}

func TestIntentHistoryRecordsTranscriptAndResult(t *testing.T) {
	history := &fakeHistory{}
	d := NewIntent(intentConfig(config.OptionLocal), nil, nil, history)

	d.AwaitIntent(context.Background(), transcriptFor("turn on the light"))

	entries := history.snapshot()
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if _, ok := entries[0].input.(pipeline.Transcript); !ok {
		t.Errorf("input = %T, want the transcript", entries[0].input)
	}
	if _, ok := entries[0].result.(pipeline.Intent); !ok {
		t.Errorf("result = %T, want the intent", entries[0].result)
	}
}
