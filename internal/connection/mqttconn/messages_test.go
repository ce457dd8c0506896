package mqttconn

import "testing"

func TestDecodeIncoming(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		check   func(t *testing.T, m Message)
	}{
		{
			name:    "text captured",
			topic:   "hermes/asr/textCaptured",
			payload: `{"text":"turn on the light","likelihood":0.95,"siteId":"kitchen","sessionId":"s1"}`,
			check: func(t *testing.T, m Message) {
				tc := m.(AsrTextCaptured)
				if tc.Text != "turn on the light" || tc.SessionID != "s1" {
					t.Errorf("decoded %+v", tc)
				}
			},
		},
		{
			name:    "asr error",
			topic:   "hermes/error/asr",
			payload: `{"error":"model crashed","siteId":"kitchen","sessionId":"s1"}`,
			check: func(t *testing.T, m Message) {
				if m.(AsrError).Error != "model crashed" {
					t.Errorf("decoded %+v", m)
				}
			},
		},
		{
			name:    "hotword detected carries wake word from topic",
			topic:   "hermes/hotword/porcupine/detected",
			payload: `{"modelId":"porcupine","siteId":"kitchen"}`,
			check: func(t *testing.T, m Message) {
				hd := m.(HotwordDetected)
				if hd.WakeWord != "porcupine" {
					t.Errorf("wake word = %q", hd.WakeWord)
				}
			},
		},
		{
			name:    "intent parsed carries name and slots",
			topic:   "hermes/intent/LightOn",
			payload: `{"input":"turn on","intent":{"intentName":"LightOn","confidenceScore":0.9},"slots":[{"slotName":"room","rawValue":"kitchen"}],"siteId":"kitchen","sessionId":"s1"}`,
			check: func(t *testing.T, m Message) {
				ip := m.(IntentParsed)
				if ip.Intent.IntentName != "LightOn" {
					t.Errorf("intent = %q", ip.Intent.IntentName)
				}
				if ip.SlotMap()["room"] != "kitchen" {
					t.Errorf("slots = %v", ip.SlotMap())
				}
				if len(ip.Raw) == 0 {
					t.Error("raw payload not preserved")
				}
			},
		},
		{
			name:    "not recognized",
			topic:   "hermes/nlu/intentNotRecognized",
			payload: `{"input":"gibberish","siteId":"kitchen","sessionId":"s1"}`,
			check: func(t *testing.T, m Message) {
				if m.(IntentNotRecognized).Input != "gibberish" {
					t.Errorf("decoded %+v", m)
				}
			},
		},
		{
			name:    "say with volume",
			topic:   "hermes/tts/say",
			payload: `{"text":"hello","volume":0.3,"siteId":"kitchen","sessionId":"s1"}`,
			check: func(t *testing.T, m Message) {
				say := m.(TtsSay)
				if say.Volume == nil || *say.Volume != 0.3 {
					t.Errorf("volume = %v", say.Volume)
				}
			},
		},
		{
			name:    "start session",
			topic:   "hermes/dialogueManager/startSession",
			payload: `{"siteId":"kitchen","init":{"type":"action"}}`,
			check: func(t *testing.T, m Message) {
				ss := m.(DialogueStartSession)
				if ss.SiteID != "kitchen" || ss.Init.Type != "action" {
					t.Errorf("decoded %+v", ss)
				}
			},
		},
		{
			name:    "end session",
			topic:   "hermes/dialogueManager/endSession",
			payload: `{"sessionId":"s1","text":"done"}`,
			check: func(t *testing.T, m Message) {
				es := m.(DialogueEndSession)
				if es.SessionID != "s1" || es.Text != "done" {
					t.Errorf("decoded %+v", es)
				}
			},
		},
		{
			name:    "play bytes keeps raw wav and topic request id",
			topic:   "hermes/audioServer/kitchen/playBytes/req-7",
			payload: "RIFFrawwav",
			check: func(t *testing.T, m Message) {
				pb := m.(PlayBytes)
				if pb.RequestID != "req-7" {
					t.Errorf("request id = %q", pb.RequestID)
				}
				if string(pb.Wav) != "RIFFrawwav" {
					t.Errorf("wav = %q", pb.Wav)
				}
			},
		},
		{
			name:    "play finished",
			topic:   "hermes/audioServer/kitchen/playFinished",
			payload: `{"id":"req-7"}`,
			check: func(t *testing.T, m Message) {
				if m.(PlayFinished).ID != "req-7" {
					t.Errorf("decoded %+v", m)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := decodeIncoming(tt.topic, []byte(tt.payload))
			if !ok {
				t.Fatal("message was dropped")
			}
			tt.check(t, m)
		})
	}
}

func TestDecodeIncomingDrops(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"unknown topic", "hermes/unknown/topic", `{}`},
		{"malformed json", "hermes/asr/textCaptured", `{"text":`},
		{"empty intent name in topic", "hermes/intent/", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := decodeIncoming(tt.topic, []byte(tt.payload)); ok {
				t.Error("expected the message to be dropped")
			}
		})
	}
}

func TestTopicBuilders(t *testing.T) {
	if got := topicPlayBytes("kitchen", "r1"); got != "hermes/audioServer/kitchen/playBytes/r1" {
		t.Errorf("playBytes topic = %q", got)
	}
	if got := topicHotwordDetected("porcupine"); got != "hermes/hotword/porcupine/detected" {
		t.Errorf("hotword topic = %q", got)
	}
	if got := hotwordFromTopic("hermes/hotword/porcupine/detected"); got != "porcupine" {
		t.Errorf("hotword from topic = %q", got)
	}
	if got := hotwordFromTopic("hermes/asr/textCaptured"); got != "" {
		t.Errorf("hotword from non-hotword topic = %q", got)
	}
	if got := topicIntent("LightOn"); got != "hermes/intent/LightOn" {
		t.Errorf("intent topic = %q", got)
	}
}
