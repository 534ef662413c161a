package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once sync.Once

	semaphorePermits prom.Gauge
	semaphoreInUse   prom.Gauge

	cloneDuration *prom.HistogramVec
	pollResults   *prom.CounterVec

	discoveryDuration *prom.HistogramVec
	discoveryResults  *prom.CounterVec

	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec

	retries          *prom.CounterVec
	retriesExhausted *prom.CounterVec

	httpDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
// Each call registers a fresh set of collectors, so calling it twice with
// the same registry panics on the duplicate registration.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.semaphorePermits = prom.NewGauge(prom.GaugeOpts{
			Namespace: "autobuildd",
			Name:      "build_semaphore_permits",
			Help:      "Configured total build-concurrency capacity.",
		})
		pr.semaphoreInUse = prom.NewGauge(prom.GaugeOpts{
			Namespace: "autobuildd",
			Name:      "build_semaphore_in_use",
			Help:      "Build-concurrency permits currently held.",
		})
		pr.cloneDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "autobuildd",
			Name:      "repo_clone_duration_seconds",
			Help:      "Duration of clone/fetch operations against a repository.",
			Buckets:   prom.DefBuckets,
		}, []string{"repo", "result"})
		pr.pollResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuildd",
			Name:      "repo_poll_results_total",
			Help:      "Repository poll cycle outcomes.",
		}, []string{"repo", "result"})
		pr.discoveryDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "autobuildd",
			Name:      "commit_discovery_duration_seconds",
			Help:      "Duration of target enumeration (flake show) for a commit.",
			Buckets:   prom.DefBuckets,
		}, []string{"repo"})
		pr.discoveryResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuildd",
			Name:      "commit_discovery_results_total",
			Help:      "Target enumeration outcomes by result.",
		}, []string{"repo", "result"})
		pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "autobuildd",
			Name:      "target_build_duration_seconds",
			Help:      "Duration of a single target build.",
			Buckets:   prom.DefBuckets,
		}, []string{"architecture"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuildd",
			Name:      "target_build_outcomes_total",
			Help:      "Target build outcomes by final status.",
		}, []string{"architecture", "outcome"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuildd",
			Name:      "repo_git_retries_total",
			Help:      "Total retried transient git operations, by repository.",
		}, []string{"repo"})
		pr.retriesExhausted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autobuildd",
			Name:      "repo_git_retry_exhausted_total",
			Help:      "Count of git operations that gave up after exhausting retries.",
		}, []string{"repo"})
		pr.httpDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "autobuildd",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of inbound HTTP requests to the status server.",
			Buckets:   prom.DefBuckets,
		}, []string{"route", "method", "status"})
		reg.MustRegister(
			pr.semaphorePermits, pr.semaphoreInUse,
			pr.cloneDuration, pr.pollResults,
			pr.discoveryDuration, pr.discoveryResults,
			pr.buildDuration, pr.buildOutcome,
			pr.retries, pr.retriesExhausted,
			pr.httpDuration,
		)
	})
	return pr
}

func (p *PrometheusRecorder) SetSemaphorePermits(n int) {
	if p == nil || p.semaphorePermits == nil {
		return
	}
	p.semaphorePermits.Set(float64(n))
}

func (p *PrometheusRecorder) SetSemaphoreInUse(n int) {
	if p == nil || p.semaphoreInUse == nil {
		return
	}
	p.semaphoreInUse.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveCloneDuration(repo string, d time.Duration, success bool) {
	if p == nil || p.cloneDuration == nil {
		return
	}
	p.cloneDuration.WithLabelValues(repo, resultString(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPollResult(repo string, result ResultLabel) {
	if p == nil || p.pollResults == nil {
		return
	}
	p.pollResults.WithLabelValues(repo, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDiscoveryDuration(repo string, d time.Duration) {
	if p == nil || p.discoveryDuration == nil {
		return
	}
	p.discoveryDuration.WithLabelValues(repo).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDiscoveryResult(repo string, result ResultLabel) {
	if p == nil || p.discoveryResults == nil {
		return
	}
	p.discoveryResults.WithLabelValues(repo, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(arch string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(arch).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(arch string, outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(arch, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRepoRetry(repo string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(repo).Inc()
}

func (p *PrometheusRecorder) IncRepoRetryExhausted(repo string) {
	if p == nil || p.retriesExhausted == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(repo).Inc()
}

func (p *PrometheusRecorder) ObserveHTTPRequestDuration(route, method string, status int, d time.Duration) {
	if p == nil || p.httpDuration == nil {
		return
	}
	p.httpDuration.WithLabelValues(route, method, statusBucket(status)).Observe(d.Seconds())
}

func resultString(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func statusBucket(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
