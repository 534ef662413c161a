package metrics

import "time"

// ResultLabel enumerates generic success/failure outcomes for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// BuildOutcomeLabel enumerates the final outcome of a single target build.
type BuildOutcomeLabel string

const (
	BuildOutcomeSuccess         BuildOutcomeLabel = "success"
	BuildOutcomeFailed          BuildOutcomeLabel = "failed"
	BuildOutcomeUnsupportedArch BuildOutcomeLabel = "unsupported_architecture"
)

// Recorder defines observability hooks for the polling/discovery/build engine.
// Implementations may forward to Prometheus or elsewhere. All methods must be
// safe for nil receivers when using NoopRecorder (allowing optional injection).
type Recorder interface {
	// SetSemaphorePermits records the configured total build-concurrency capacity.
	SetSemaphorePermits(n int)
	// SetSemaphoreInUse records the number of permits currently held.
	SetSemaphoreInUse(n int)

	// ObserveCloneDuration records how long a clone or fetch against repo took.
	ObserveCloneDuration(repo string, d time.Duration, success bool)
	// IncPollResult counts a repository poll cycle outcome.
	IncPollResult(repo string, result ResultLabel)

	// ObserveDiscoveryDuration records how long target enumeration for a commit took.
	ObserveDiscoveryDuration(repo string, d time.Duration)
	// IncDiscoveryResult counts a target enumeration outcome.
	IncDiscoveryResult(repo string, result ResultLabel)

	// ObserveBuildDuration records how long a single target build took, by architecture.
	ObserveBuildDuration(arch string, d time.Duration)
	// IncBuildOutcome counts a single target build's final status.
	IncBuildOutcome(arch string, outcome BuildOutcomeLabel)

	// IncRepoRetry counts a retried transient git operation.
	IncRepoRetry(repo string)
	// IncRepoRetryExhausted counts a git operation that gave up after exhausting retries.
	IncRepoRetryExhausted(repo string)

	// ObserveHTTPRequestDuration records an inbound HTTP request.
	ObserveHTTPRequestDuration(route string, method string, status int, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) SetSemaphorePermits(int)                          {}
func (NoopRecorder) SetSemaphoreInUse(int)                            {}
func (NoopRecorder) ObserveCloneDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncPollResult(string, ResultLabel)                {}
func (NoopRecorder) ObserveDiscoveryDuration(string, time.Duration)   {}
func (NoopRecorder) IncDiscoveryResult(string, ResultLabel)           {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration)       {}
func (NoopRecorder) IncBuildOutcome(string, BuildOutcomeLabel)        {}
func (NoopRecorder) IncRepoRetry(string)                              {}
func (NoopRecorder) IncRepoRetryExhausted(string)                     {}
func (NoopRecorder) ObserveHTTPRequestDuration(string, string, int, time.Duration) {
}
