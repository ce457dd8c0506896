package domain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
)

// Intent implements [pipeline.IntentDomain]: transcript text in, recognised
// intent out. The local recognizer fuzzy-matches the transcript against the
// configured example sentences; http and mqtt delegate to a remote NLU.
type Intent struct {
	cfg     config.IntentConfig
	http    HTTPConn
	conn    MqttConn
	history pipeline.DomainHistory
}

var _ pipeline.IntentDomain = (*Intent)(nil)

// NewIntent builds the Intent domain for one session.
func NewIntent(cfg config.IntentConfig, http HTTPConn, conn MqttConn, history pipeline.DomainHistory) *Intent {
	return &Intent{cfg: cfg, http: http, conn: conn, history: history}
}

// AwaitIntent implements [pipeline.IntentDomain].
func (d *Intent) AwaitIntent(ctx context.Context, transcript pipeline.Transcript) pipeline.IntentResult {
	sessionID := transcript.SessionID

	var result pipeline.IntentResult
	switch d.cfg.Option {
	case config.OptionDisabled:
		result = pipeline.IntentDisabled{SessionID: sessionID, Source: pipeline.SourceLocal}
	case config.OptionHTTP:
		result = d.recognizeHTTP(ctx, transcript)
	case config.OptionMQTT:
		result = d.recognizeRemote(ctx, transcript)
	default: // local
		result = d.recognizeLocal(transcript)
	}
	addHistory(d.history, sessionID, transcript, result)
	return result
}

// recognizeLocal matches the transcript against the configured sentences
// with Jaro-Winkler similarity and returns the best intent at or above the
// minimum score.
func (d *Intent) recognizeLocal(transcript pipeline.Transcript) pipeline.IntentResult {
	input := normalize(transcript.Text)
	if input == "" {
		return pipeline.NotRecognized{SessionID: transcript.SessionID, Reason: pipeline.Failure(errors.New("empty transcript")), Source: pipeline.SourceLocal}
	}

	minScore := d.cfg.MinScore
	if minScore <= 0 {
		minScore = 0.85
	}

	bestScore := 0.0
	bestIntent := ""
	for _, s := range d.cfg.Sentences {
		for _, example := range s.Examples {
			if score := matchr.JaroWinkler(input, normalize(example), false); score > bestScore {
				bestScore = score
				bestIntent = s.Intent
			}
		}
	}

	if bestIntent == "" || bestScore < minScore {
		return pipeline.NotRecognized{SessionID: transcript.SessionID, Source: pipeline.SourceLocal}
	}
	if d.conn != nil {
		if err := d.conn.PublishIntent(transcript.SessionID, transcript.Text, bestIntent, bestScore, nil); err != nil {
			slog.Warn("intent announcement failed", "intent", bestIntent, "error", err)
		}
	}
	return pipeline.Intent{SessionID: transcript.SessionID, Name: bestIntent, Source: pipeline.SourceLocal}
}

func (d *Intent) recognizeHTTP(ctx context.Context, transcript pipeline.Transcript) pipeline.IntentResult {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	recognized, err := d.http.RecognizeIntent(ctx, transcript.Text)
	if err != nil {
		return pipeline.NotRecognized{SessionID: transcript.SessionID, Reason: pipeline.Failure(err), Source: pipeline.SourceHTTPAPI}
	}
	if recognized.Name == "" {
		return pipeline.NotRecognized{SessionID: transcript.SessionID, Source: pipeline.SourceHTTPAPI}
	}
	return pipeline.Intent{
		SessionID: transcript.SessionID,
		Name:      recognized.Name,
		Slots:     recognized.Slots,
		Source:    pipeline.SourceHTTPAPI,
	}
}

// recognizeRemote queries the broker NLU and takes the first parsed or
// not-recognized answer for this session.
func (d *Intent) recognizeRemote(ctx context.Context, transcript pipeline.Transcript) pipeline.IntentResult {
	sessionID := transcript.SessionID
	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ch, cancel := d.conn.Subscribe(16)
	defer cancel()

	if err := d.conn.PublishNluQuery(sessionID, transcript.Text); err != nil {
		return pipeline.NotRecognized{SessionID: sessionID, Reason: pipeline.Failure(err), Source: pipeline.SourceMQTT}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return pipeline.NotRecognized{SessionID: sessionID, Reason: pipeline.Failure(errors.New("mqtt connection closed")), Source: pipeline.SourceMQTT}
			}
			switch m := msg.(type) {
			case mqttconn.IntentParsed:
				if m.SessionID == sessionID {
					return pipeline.Intent{
						SessionID: sessionID,
						Name:      m.Intent.IntentName,
						Slots:     m.SlotMap(),
						Source:    pipeline.SourceMQTT,
					}
				}
			case mqttconn.IntentNotRecognized:
				if m.SessionID == sessionID {
					return pipeline.NotRecognized{SessionID: sessionID, Source: pipeline.SourceMQTT}
				}
			}
		case <-timer.C:
			return pipeline.NotRecognized{SessionID: sessionID, Reason: pipeline.Timeout(), Source: pipeline.SourceMQTT}
		case <-ctx.Done():
			return pipeline.NotRecognized{SessionID: sessionID, Reason: pipeline.Failure(ctx.Err()), Source: pipeline.SourceMQTT}
		}
	}
}

// Dispose implements [pipeline.IntentDomain].
func (d *Intent) Dispose() {}

// normalize lowercases and collapses whitespace for fuzzy comparison.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
