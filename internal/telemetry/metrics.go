// Package telemetry exports parserdesk's metrics to Prometheus and its
// spans over OTLP.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/cron"
	"github.com/flemzord/parserdesk/internal/tool"
)

// ServiceName is the AppContext service key of the *Metrics.
const ServiceName = "telemetry.metrics"

const namespace = "parserdesk"

// Compile-time interface guards.
var (
	_ agent.Observer   = (*Metrics)(nil)
	_ tool.Recorder    = (*Metrics)(nil)
	_ cron.JobObserver = (*Metrics)(nil)
)

// Metrics owns a private Prometheus registry and the collectors fed by
// conversations, the function registry, cron jobs and the HTTP gateway.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls     *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	functions    *prometheus.CounterVec
	funcDuration *prometheus.HistogramVec
	jobs         *prometheus.CounterVec
	requests     *prometheus.CounterVec
	reqDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors. Go runtime and process collectors are
// included.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls by model, phase and result.",
		}, []string{"model", "phase", "result"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Language model call latency.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"model", "phase"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"model", "kind"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a whole turn, function rounds included.",
			Buckets:   []float64{.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		}),
		functions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calls_total",
			Help:      "Function executions by name and outcome.",
		}, []string{"function", "outcome"}),
		funcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "function_duration_seconds",
			Help:      "Function execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_job_runs_total",
			Help:      "Background job runs by job and result.",
		}, []string{"job", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.llmCalls, m.llmDuration, m.tokens,
		m.turns, m.turnDuration,
		m.functions, m.funcDuration,
		m.jobs,
		m.requests, m.reqDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackSessions exposes the live session count, read at scrape time.
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Live design sessions.",
	}, func() float64 { return float64(count()) }))
}

// ObserveLLMCall implements agent.Observer.
func (m *Metrics) ObserveLLMCall(model string, phase agent.Phase, elapsed time.Duration, err error) {
	m.llmCalls.WithLabelValues(model, string(phase), result(err)).Inc()
	m.llmDuration.WithLabelValues(model, string(phase)).Observe(elapsed.Seconds())
}

// ObserveTokens implements agent.Observer.
func (m *Metrics) ObserveTokens(model string, prompt, completion int) {
	m.tokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.tokens.WithLabelValues(model, "completion").Add(float64(completion))
}

// ObserveTurn implements agent.Observer.
func (m *Metrics) ObserveTurn(outcome string, elapsed time.Duration) {
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(elapsed.Seconds())
}

// ObserveFunction implements tool.Recorder.
func (m *Metrics) ObserveFunction(name, outcome string, elapsed time.Duration) {
	m.functions.WithLabelValues(name, outcome).Inc()
	m.funcDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveJob implements cron.JobObserver.
func (m *Metrics) ObserveJob(job string, _ time.Duration, err error) {
	m.jobs.WithLabelValues(job, result(err)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.reqDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
