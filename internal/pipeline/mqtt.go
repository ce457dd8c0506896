package pipeline

import "context"

// SessionNotifier announces session lifecycle to the dialogue manager on the
// broker. Implemented by the MQTT connection; a no-op implementation is used
// when the broker is absent.
type SessionNotifier interface {
	NotifySessionStarted(ctx context.Context, sessionID, siteID string)
	NotifySessionEnded(ctx context.Context, sessionID, siteID string)
}

// NopNotifier is a SessionNotifier that does nothing.
type NopNotifier struct{}

func (NopNotifier) NotifySessionStarted(context.Context, string, string) {}
func (NopNotifier) NotifySessionEnded(context.Context, string, string)   {}

// Mqtt runs one session with every stage satisfied over the broker: the
// manager hands it a bundle whose domain configurations all point at MQTT
// backends, so each Await* becomes a publish + filtered wait round trip.
// Audio focus is still locally arbitrated because local capture and playback
// resources are consumed even though compute happens remotely.
//
// The stage chain itself is identical to the local variant; what differs is
// the bundle contents and the session announcements on the dialogue topics.
type Mqtt struct {
	chain    *Local
	notifier SessionNotifier
	siteID   string
}

var _ Pipeline = (*Mqtt)(nil)

// NewMqtt builds the MQTT variant.
func NewMqtt(domains *DomainBundle, focus AudioFocus, notifier SessionNotifier, volume float64, siteID string) *Mqtt {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Mqtt{
		chain:    NewLocal(domains, focus, volume, siteID),
		notifier: notifier,
		siteID:   siteID,
	}
}

// RunPipeline announces the session, runs the stage chain, and announces the
// end regardless of outcome.
func (p *Mqtt) RunPipeline(ctx context.Context, start StartEvent) PipelineResult {
	result := p.chain.runAnnounced(ctx, start, p.notifier, p.siteID)
	return result
}

// runAnnounced wraps the stage chain with session lifecycle notifications.
// The ended notification is sent even when the run is cancelled.
func (p *Local) runAnnounced(ctx context.Context, start StartEvent, notifier SessionNotifier, siteID string) PipelineResult {
	sessionID := start.SessionID
	if sessionID == "" {
		// Generate up front so started/ended carry the same id the chain uses.
		sessionID = newSessionID()
		start.SessionID = sessionID
	}
	notifier.NotifySessionStarted(ctx, sessionID, siteID)
	defer notifier.NotifySessionEnded(ctx, sessionID, siteID)
	return p.RunPipeline(ctx, start)
}
