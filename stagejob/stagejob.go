// Package stagejob defines the per-job state machine every pipeline stage
// runs against (C6): a pluggable StageJob with a Base embedding the common
// fields, and the Result boundary type that converts a stage's outcome
// into a status envelope without relying on exceptions for control flow
// (spec §9, "Exceptions for control flow").
package stagejob

import (
	"context"

	"oss.mash.dev/mash/pipeline"
)

// Status mirrors spec §3's Status enum. Transitions are monotone per pass.
type Status string

const (
	StatusUnknown   Status = "UNKNOWN"
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusException Status = "EXCEPTION"
)

// WireStatus maps an internal Status to the listener-message wire value
// (spec §6: "status ∈ {success, error, exception}").
func (s Status) WireStatus() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusException:
		return "exception"
	default:
		return "error"
	}
}

// Result is the boundary type between a StageJob's RunJob and the
// framework: the framework converts Err(e) into the status envelope
// instead of relying on a broad recover().
type Result struct {
	Status         Status
	Msg            string
	CloudImageName string
	SourceRegions  []string
	Err            error
}

// StageJob is the pluggable per-cloud behaviour for one pipeline stage.
// RequiredListenerArgs/RequiredStatusArgs let the generic listener
// framework (C5) validate an incoming message before invoking RunJob.
type StageJob interface {
	// RunJob performs the stage-specific cloud action. It must: consume
	// the status_msg left by the prior stage (passed via ctx or the
	// implementation's own state), perform the action, and return a
	// Result carrying the outcome and the fields the next stage requires.
	RunJob(ctx context.Context) Result
	// RequiredListenerArgs lists the fields the upstream listener message
	// must carry beyond `id` for this stage to proceed.
	RequiredListenerArgs() []string
	// RequiredStatusArgs lists the fields this stage must populate in its
	// own status message for the next stage.
	RequiredStatusArgs() []string
}

// Base holds the fields common to every per-job object (spec §4.6) and
// wraps RunJob with the iteration-count increment every pass performs,
// mirroring original_source/mash/services/mash_job.py's
// MashJob.process_job().
type Base struct {
	ID              string
	Cloud           string
	UtcTime         string
	LastService     pipeline.Stage
	Stage           pipeline.Stage
	IterationCount  int
	Status          Status
	Credentials     map[string]string
	CloudImageName  string
	SourceRegions   []string
	JobFile         string
	StatusMsg       map[string]any
	LogCallback     func(msg string)
	job             StageJob
}

// NewBase wraps a StageJob implementation with the common bookkeeping
// fields, returning a Base that itself satisfies StageJob by delegating to
// the wrapped implementation inside ProcessJob.
func NewBase(job StageJob) *Base {
	return &Base{Status: StatusUnknown, job: job}
}

// ProcessJob increments IterationCount and then invokes the wrapped
// StageJob's RunJob, recording the resulting status on Base so the
// listener framework can read it back without a type switch per cloud.
func (b *Base) ProcessJob(ctx context.Context) Result {
	b.IterationCount++
	b.Status = StatusRunning
	result := b.job.RunJob(ctx)
	b.Status = result.Status
	b.CloudImageName = result.CloudImageName
	if result.SourceRegions != nil {
		b.SourceRegions = result.SourceRegions
	}
	return result
}

// NoOp is the StageJob used to fill stages a cloud does not need (e.g. GCE
// has no separate publish stage). It always succeeds with no side effects.
type NoOp struct {
	// ForwardCloudImageName carries the prior stage's image name through so
	// a no-op stage still round-trips status unchanged (spec §8, round-trip
	// property: "A stage whose run_job is NoOp forwards the prior status
	// unchanged").
	ForwardCloudImageName string
	ForwardSourceRegions  []string
}

func (n NoOp) RunJob(_ context.Context) Result {
	return Result{
		Status:         StatusSuccess,
		CloudImageName: n.ForwardCloudImageName,
		SourceRegions:  n.ForwardSourceRegions,
	}
}

func (n NoOp) RequiredListenerArgs() []string { return nil }
func (n NoOp) RequiredStatusArgs() []string    { return nil }
