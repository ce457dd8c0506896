package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/pipeline"
)

// Handle implements [pipeline.HandleDomain]: a recognised intent goes to the
// configured handler, and the answer (text to speak, possibly empty) comes
// back as a Handle result.
//
// HomeAssistant has two modes. Intent mode answers synchronously over HTTP.
// Event mode only fires an event; the reply, if any automation produces one,
// arrives asynchronously as a Say or EndSession on the broker or the web
// server, so the domain waits on all those surfaces at once and takes the
// first answer addressed to the session.
type Handle struct {
	cfg       config.HandleConfig
	haCfg     config.HomeAssistantConfig
	siteID    string
	ha        HAConn
	http      HTTPConn
	conn      MqttConn
	say       SayBus
	indicator pipeline.Indicator
	history   pipeline.DomainHistory
}

var _ pipeline.HandleDomain = (*Handle)(nil)

// NewHandle builds the Handle domain for one session.
func NewHandle(cfg config.HandleConfig, haCfg config.HomeAssistantConfig, siteID string, ha HAConn, http HTTPConn, conn MqttConn, say SayBus, indicator pipeline.Indicator, history pipeline.DomainHistory) *Handle {
	return &Handle{
		cfg:       cfg,
		haCfg:     haCfg,
		siteID:    siteID,
		ha:        ha,
		http:      http,
		conn:      conn,
		say:       say,
		indicator: indicator,
		history:   history,
	}
}

// AwaitIntentHandle implements [pipeline.HandleDomain].
func (d *Handle) AwaitIntentHandle(ctx context.Context, intent pipeline.Intent) pipeline.HandleResult {
	sessionID := intent.SessionID

	if d.cfg.Option == config.OptionDisabled {
		result := pipeline.HandleDisabled{SessionID: sessionID, Source: pipeline.SourceLocal}
		addHistory(d.history, sessionID, intent, result)
		return result
	}

	if d.indicator != nil {
		d.indicator.OnThinking()
	}

	var result pipeline.HandleResult
	switch d.cfg.Option {
	case config.OptionHTTP:
		result = d.handleHTTP(ctx, intent)
	case config.OptionMQTT:
		result = d.awaitAnswer(ctx, sessionID, pipeline.SourceMQTT)
	default: // home_assistant
		result = d.handleHomeAssistant(ctx, intent)
	}
	addHistory(d.history, sessionID, intent, result)
	return result
}

func (d *Handle) handleHomeAssistant(ctx context.Context, intent pipeline.Intent) pipeline.HandleResult {
	sessionID := intent.SessionID

	if d.haCfg.Mode == config.HomeAssistantModeEvent {
		if err := d.ha.FireEvent(ctx, intent.Name, sessionID, d.siteID, intent.Slots); err != nil {
			return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Failure(err), Source: pipeline.SourceHomeAssistant}
		}
		return d.awaitAnswer(ctx, sessionID, pipeline.SourceHomeAssistant)
	}

	stageCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	reply, err := d.ha.HandleIntent(stageCtx, intent.Name, intent.Slots)
	if err != nil {
		return classifyHandleErr(err, sessionID, pipeline.SourceHomeAssistant)
	}
	return pipeline.Handle{SessionID: sessionID, Text: reply, Source: pipeline.SourceHomeAssistant}
}

func (d *Handle) handleHTTP(ctx context.Context, intent pipeline.Intent) pipeline.HandleResult {
	sessionID := intent.SessionID

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(map[string]any{
		"intent": map[string]any{"name": intent.Name},
		"slots":  intent.Slots,
	})
	if err != nil {
		return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Failure(err), Source: pipeline.SourceHTTPAPI}
	}

	reply, err := d.http.HandleIntent(ctx, payload)
	if err != nil {
		return classifyHandleErr(err, sessionID, pipeline.SourceHTTPAPI)
	}
	return pipeline.Handle{SessionID: sessionID, Text: reply, Source: pipeline.SourceHTTPAPI}
}

// awaitAnswer waits for the first Say or EndSession addressed to the session
// on any connected surface. Broker Says carrying another site's id are
// ignored even when the session id matches.
func (d *Handle) awaitAnswer(ctx context.Context, sessionID string, source pipeline.Source) pipeline.HandleResult {
	timeout := d.cfg.Timeout
	if d.haCfg.Mode == config.HomeAssistantModeEvent && d.haCfg.EventTimeout > 0 {
		timeout = d.haCfg.EventTimeout
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var broker <-chan mqttconn.Message
	if d.conn != nil {
		ch, cancel := d.conn.Subscribe(16)
		defer cancel()
		broker = ch
	}
	var says <-chan SayCommand
	if d.say != nil {
		ch, cancel := d.say.SubscribeSay()
		defer cancel()
		says = ch
	}
	if broker == nil && says == nil {
		return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Failure(errors.New("no answer surface connected")), Source: source}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-broker:
			if !ok {
				broker = nil
				continue
			}
			switch m := msg.(type) {
			case mqttconn.TtsSay:
				if m.SessionID == sessionID && (m.SiteID == "" || m.SiteID == d.siteID) {
					return pipeline.Handle{SessionID: sessionID, Text: m.Text, Volume: m.Volume, Source: source}
				}
			case mqttconn.DialogueEndSession:
				if m.SessionID == sessionID {
					return pipeline.Handle{SessionID: sessionID, Text: m.Text, Source: source}
				}
			}
		case cmd, ok := <-says:
			if !ok {
				says = nil
				continue
			}
			if cmd.SessionID == sessionID || cmd.SessionID == "" {
				return pipeline.Handle{SessionID: sessionID, Text: cmd.Text, Volume: cmd.Volume, Source: pipeline.SourceWebServer}
			}
		case <-timer.C:
			return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Timeout(), Source: source}
		case <-ctx.Done():
			return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Failure(ctx.Err()), Source: source}
		}
	}
}

func classifyHandleErr(err error, sessionID string, source pipeline.Source) pipeline.HandleResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Timeout(), Source: source}
	}
	return pipeline.HandleError{SessionID: sessionID, Reason: pipeline.Failure(err), Source: source}
}

// Dispose implements [pipeline.HandleDomain].
func (d *Handle) Dispose() {}
