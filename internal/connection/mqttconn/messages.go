package mqttconn

import (
	"encoding/json"
	"strings"
)

// Message is one decoded incoming broker message. The concrete type is one
// of the structs below; consumers type-switch or use [AwaitMessage].
type Message any

// HotwordDetected signals a wake word fired somewhere on the bus.
type HotwordDetected struct {
	WakeWord string `json:"-"`
	ModelID  string `json:"modelId"`
	SiteID   string `json:"siteId"`
}

// AsrStartListening asks the remote ASR to start a session.
type AsrStartListening struct {
	SiteID            string `json:"siteId"`
	SessionID         string `json:"sessionId"`
	StopOnSilence     bool   `json:"stopOnSilence"`
	SendAudioCaptured bool   `json:"sendAudioCaptured"`
}

// AsrStopListening asks the remote ASR to finish a session.
type AsrStopListening struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// AsrTextCaptured is the remote ASR's transcription result.
type AsrTextCaptured struct {
	Text       string  `json:"text"`
	Likelihood float64 `json:"likelihood"`
	SiteID     string  `json:"siteId"`
	SessionID  string  `json:"sessionId"`
}

// AsrError is the remote ASR's failure report.
type AsrError struct {
	Error     string `json:"error"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// NluQuery asks the remote NLU to recognise an intent from text.
type NluQuery struct {
	Input     string `json:"input"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// IntentSlot is one filled slot of a parsed intent.
type IntentSlot struct {
	SlotName string `json:"slotName"`
	RawValue string `json:"rawValue"`
	Value    struct {
		Value any `json:"value"`
	} `json:"value"`
}

// IntentParsed is the remote NLU's recognition result, published on
// hermes/intent/<intentName>.
type IntentParsed struct {
	Input  string `json:"input"`
	Intent struct {
		IntentName string  `json:"intentName"`
		Confidence float64 `json:"confidenceScore"`
	} `json:"intent"`
	Slots     []IntentSlot `json:"slots"`
	SiteID    string       `json:"siteId"`
	SessionID string       `json:"sessionId"`

	// Raw is the unmodified payload, forwarded to intent handlers.
	Raw []byte `json:"-"`
}

// SlotMap flattens the slot list into name → raw value.
func (m IntentParsed) SlotMap() map[string]string {
	if len(m.Slots) == 0 {
		return nil
	}
	out := make(map[string]string, len(m.Slots))
	for _, s := range m.Slots {
		out[s.SlotName] = s.RawValue
	}
	return out
}

// IntentNotRecognized is the remote NLU's negative result.
type IntentNotRecognized struct {
	Input     string `json:"input"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
}

// TtsSay asks for text to be spoken. Incoming Says targeted at this site are
// also how a remote dialogue manager or HomeAssistant answers a session.
type TtsSay struct {
	Text      string   `json:"text"`
	Volume    *float64 `json:"volume,omitempty"`
	SiteID    string   `json:"siteId"`
	SessionID string   `json:"sessionId"`
	ID        string   `json:"id,omitempty"`
}

// TtsSayFinished reports a Say completed.
type TtsSayFinished struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId"`
	ID        string `json:"id,omitempty"`
}

// PlayBytes carries WAV audio this site should play. The request id comes
// from the topic; the payload is the raw WAV, not JSON.
type PlayBytes struct {
	RequestID string
	Wav       []byte
}

// PlayFinished reports this site finished playing a request.
type PlayFinished struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
}

// DialogueStartSession asks a site to open a session. The satellite reacts
// by starting one as if the wake word had fired.
type DialogueStartSession struct {
	SiteID string `json:"siteId"`
	Init   struct {
		Type string `json:"type"`
	} `json:"init"`
}

// DialogueEndSession asks the dialogue manager to close a session, with an
// optional final text to speak. Incoming EndSessions are how HomeAssistant's
// event mode answers a handled intent.
type DialogueEndSession struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
}

// DialogueSessionStarted announces a session is running.
type DialogueSessionStarted struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
}

// DialogueSessionEnded announces a session finished.
type DialogueSessionEnded struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
}

// decodeIncoming maps a raw broker message onto its typed form. Unknown
// topics and malformed payloads return ok = false and are dropped.
func decodeIncoming(topic string, payload []byte) (Message, bool) {
	switch {
	case topic == topicAsrTextCaptured:
		return unmarshal[AsrTextCaptured](payload)
	case topic == topicAsrError:
		return unmarshal[AsrError](payload)
	case topic == topicNluIntentNotRecognized:
		return unmarshal[IntentNotRecognized](payload)
	case topic == topicTtsSay:
		return unmarshal[TtsSay](payload)
	case topic == topicTtsSayFinished:
		return unmarshal[TtsSayFinished](payload)
	case topic == topicDialogueStartSession:
		return unmarshal[DialogueStartSession](payload)
	case topic == topicDialogueEndSession:
		return unmarshal[DialogueEndSession](payload)

	case hotwordFromTopic(topic) != "":
		m, ok := unmarshal[HotwordDetected](payload)
		if ok {
			m.WakeWord = hotwordFromTopic(topic)
		}
		return m, ok

	case intentFromTopic(topic) != "":
		m, ok := unmarshal[IntentParsed](payload)
		if ok {
			m.Raw = payload
		}
		return m, ok

	case playBytesRequestID(topic) != "":
		return PlayBytes{RequestID: playBytesRequestID(topic), Wav: payload}, true

	case strings.HasSuffix(topic, "/playFinished"):
		return unmarshal[PlayFinished](payload)
	}
	return nil, false
}

func unmarshal[T any](payload []byte) (T, bool) {
	var m T
	if err := json.Unmarshal(payload, &m); err != nil {
		var zero T
		return zero, false
	}
	return m, true
}
