package mqttconn

import "strings"

// Hermes topic layout. Topics that embed a site or request id are built by
// the functions below; the incoming subscription set uses wildcards.
const (
	topicAsrStartListening = "hermes/asr/startListening"
	topicAsrStopListening  = "hermes/asr/stopListening"
	topicAsrTextCaptured   = "hermes/asr/textCaptured"
	topicAsrError          = "hermes/error/asr"

	topicNluQuery               = "hermes/nlu/query"
	topicNluIntentNotRecognized = "hermes/nlu/intentNotRecognized"

	topicTtsSay         = "hermes/tts/say"
	topicTtsSayFinished = "hermes/tts/sayFinished"

	topicDialogueStartSession   = "hermes/dialogueManager/startSession"
	topicDialogueEndSession     = "hermes/dialogueManager/endSession"
	topicDialogueSessionStarted = "hermes/dialogueManager/sessionStarted"
	topicDialogueSessionEnded   = "hermes/dialogueManager/sessionEnded"
)

func topicHotwordDetected(wakeWord string) string {
	return "hermes/hotword/" + wakeWord + "/detected"
}

func topicIntent(intentName string) string {
	return "hermes/intent/" + intentName
}

func topicAudioFrame(siteID string) string {
	return "hermes/audioServer/" + siteID + "/audioFrame"
}

func topicPlayBytes(siteID, requestID string) string {
	return "hermes/audioServer/" + siteID + "/playBytes/" + requestID
}

func topicPlayFinished(siteID string) string {
	return "hermes/audioServer/" + siteID + "/playFinished"
}

// incomingFilters is the subscription set for one site.
func incomingFilters(siteID string) map[string]byte {
	return map[string]byte{
		"hermes/hotword/+/detected":                     0,
		topicAsrTextCaptured:                            0,
		topicAsrError:                                   0,
		"hermes/intent/#":                               0,
		topicNluIntentNotRecognized:                     0,
		topicTtsSay:                                     0,
		topicTtsSayFinished:                             0,
		topicDialogueStartSession:                       0,
		topicDialogueEndSession:                         0,
		"hermes/audioServer/" + siteID + "/playBytes/#": 0,
		topicPlayFinished(siteID):                       0,
	}
}

// hotwordFromTopic extracts the wake word id from a detected topic, or "".
func hotwordFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 4 && parts[0] == "hermes" && parts[1] == "hotword" && parts[3] == "detected" {
		return parts[2]
	}
	return ""
}

// intentFromTopic extracts the intent name from an intent topic, or "".
func intentFromTopic(topic string) string {
	if rest, ok := strings.CutPrefix(topic, "hermes/intent/"); ok && rest != "" {
		return rest
	}
	return ""
}

// playBytesRequestID extracts the request id from a playBytes topic, or "".
func playBytesRequestID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 5 && parts[0] == "hermes" && parts[1] == "audioServer" && parts[3] == "playBytes" {
		return parts[4]
	}
	return ""
}
