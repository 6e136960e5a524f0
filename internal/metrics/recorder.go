package metrics

import "time"

// OutcomeLabel enumerates outcomes of registration and unregistration
// attempts.
type OutcomeLabel string

const (
	OutcomeLoaded    OutcomeLabel = "loaded"
	OutcomeSkipped   OutcomeLabel = "skipped"
	OutcomeContended OutcomeLabel = "contended"
	OutcomeDeferred  OutcomeLabel = "deferred"
	OutcomeFailed    OutcomeLabel = "failed"
	OutcomeUnloaded  OutcomeLabel = "unloaded"
	OutcomeAbsent    OutcomeLabel = "absent"
)

// Recorder defines observability hooks for content registration. All
// implementations must be safe for concurrent use.
type Recorder interface {
	ObserveRegistration(outcome OutcomeLabel, d time.Duration)
	ObserveUnregistration(outcome OutcomeLabel, d time.Duration)
	IncUnitEvent(kind string)
	SetDeferredUnits(n int)
	IncLockReleaseFailure()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRegistration(OutcomeLabel, time.Duration)   {}
func (NoopRecorder) ObserveUnregistration(OutcomeLabel, time.Duration) {}
func (NoopRecorder) IncUnitEvent(string)                               {}
func (NoopRecorder) SetDeferredUnits(int)                              {}
func (NoopRecorder) IncLockReleaseFailure()                            {}
