package metrics

import "time"

type testRecorder struct {
	semaphoreInUse int
	pollResults    map[string]map[ResultLabel]int
	buildDurations int
	buildOutcomes  map[string]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{pollResults: map[string]map[ResultLabel]int{}, buildOutcomes: map[string]int{}}
}

func (t *testRecorder) SetSemaphorePermits(int)                          {}
func (t *testRecorder) SetSemaphoreInUse(n int)                          { t.semaphoreInUse = n }
func (t *testRecorder) ObserveCloneDuration(string, time.Duration, bool) {}
func (t *testRecorder) IncPollResult(repo string, result ResultLabel) {
	m, ok := t.pollResults[repo]
	if !ok {
		m = map[ResultLabel]int{}
		t.pollResults[repo] = m
	}
	m[result]++
}
func (t *testRecorder) ObserveDiscoveryDuration(string, time.Duration) {}
func (t *testRecorder) IncDiscoveryResult(string, ResultLabel)         {}
func (t *testRecorder) ObserveBuildDuration(string, time.Duration)     { t.buildDurations++ }
func (t *testRecorder) IncBuildOutcome(arch string, outcome BuildOutcomeLabel) {
	t.buildOutcomes[arch+":"+string(outcome)]++
}
func (t *testRecorder) IncRepoRetry(string)                                           {}
func (t *testRecorder) IncRepoRetryExhausted(string)                                  {}
func (t *testRecorder) ObserveHTTPRequestDuration(string, string, int, time.Duration) {}

var _ Recorder = (*testRecorder)(nil)
