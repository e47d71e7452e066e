// Package metrics exposes Prometheus metrics for job runs and the local HTTP
// API.
//
// Metrics:
//
//	prepflow_runs_started_total          runs submitted
//	prepflow_runs_finished_total{status} runs that reached completed or failed
//	prepflow_run_duration_seconds        elapsed time at the terminal status
//	prepflow_stale_responses_total{source} responses dropped for superseded runs
//	prepflow_status_polls_total{result}  status polls by outcome
//	prepflow_status_poll_seconds         status poll latency
//	prepflow_run_active                  1 while a run is in flight
//	prepflow_http_requests_total{method,route,status}
//	prepflow_http_request_seconds{method,route}
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/prepflow/internal/job"
)

const namespace = "prepflow"

// Collector holds every metric and implements job.Observer.
type Collector struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	staleDiscards *prometheus.CounterVec
	polls         *prometheus.CounterVec
	pollLatency   prometheus.Histogram
	runActive     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg. With a nil
// reg a private registry is used.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs submitted",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of runs that reached a terminal status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Elapsed time of a run at its terminal status",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		staleDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Backend responses discarded because their run was superseded",
		}, []string{"source"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Status polls by outcome",
		}, []string{"result"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_poll_seconds",
			Help:      "Status poll latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		runActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while a run is in flight",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the local API",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsFinished,
		c.runDuration,
		c.staleDiscards,
		c.polls,
		c.pollLatency,
		c.runActive,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RunStarted implements job.Observer.
func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
	c.runActive.Set(1)
}

// RunFinished implements job.Observer.
func (c *Collector) RunFinished(status job.Status, elapsed time.Duration) {
	c.runsFinished.WithLabelValues(string(status)).Inc()
	c.runDuration.Observe(elapsed.Seconds())
	c.runActive.Set(0)
}

// StaleDiscarded implements job.Observer.
func (c *Collector) StaleDiscarded(source string) {
	c.staleDiscards.WithLabelValues(source).Inc()
}

// PollCompleted implements job.Observer.
func (c *Collector) PollCompleted(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.polls.WithLabelValues(result).Inc()
	c.pollLatency.Observe(d.Seconds())
}

// RunReset marks that no run is active any more.
func (c *Collector) RunReset() {
	c.runActive.Set(0)
}

// ObserveHTTP records one served request. route is the matched route
// pattern, not the raw path.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

var _ job.Observer = (*Collector)(nil)
