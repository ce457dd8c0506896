package pipeline

import "context"

// DisabledResult is the terminal result of the disabled pipeline variant.
type DisabledResult struct {
	SessionID string
}

func (r DisabledResult) ResultSession() string { return r.SessionID }
func (r DisabledResult) ResultSource() Source  { return SourceLocal }
func (DisabledResult) pipelineResult()         {}

// DisabledPipeline is the null-object variant used when the whole pipeline is
// turned off in configuration. It consumes no domain and exists so the
// manager always has a variant to invoke.
type DisabledPipeline struct{}

var _ Pipeline = DisabledPipeline{}

// RunPipeline returns a disabled terminal result immediately.
func (DisabledPipeline) RunPipeline(_ context.Context, start StartEvent) PipelineResult {
	return DisabledResult{SessionID: start.SessionID}
}
