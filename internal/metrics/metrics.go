package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// C6 scan loop

	ScanCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "scan_cycle_duration_seconds",
		Help:      "Time taken for one due-schedule scan cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	ScanDueSchedulesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "scan_due_schedules_total",
		Help:      "Total schedules found due across all scan cycles.",
	})

	ScanEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "scan_enqueued_total",
		Help:      "Total execution runs enqueued by the scan loop, by outcome.",
	}, []string{"outcome"})

	// C7 execution pipeline

	PipelineRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "pipeline_run_duration_seconds",
		Help:      "Duration of one execution run through the pipeline.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})

	PipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "pipeline_runs_total",
		Help:      "Total execution runs completed, by terminal status.",
	}, []string{"status"})

	PipelineRunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "pipeline_runs_in_flight",
		Help:      "Number of execution runs currently being processed.",
	})

	// C4 result cache

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "cache_hits_total",
		Help:      "Total cache lookups that hit.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "cache_misses_total",
		Help:      "Total cache lookups that missed.",
	})

	// C5 burst protection

	BurstAdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "burst_admissions_total",
		Help:      "Total admission decisions, by outcome (admitted/refused).",
	}, []string{"outcome"})

	// C8 retention sweeper

	RetentionSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "retention_sweep_duration_seconds",
		Help:      "Time taken for one retention sweep pass.",
		Buckets:   prometheus.DefBuckets,
	})

	RetentionDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "retention_deleted_total",
		Help:      "Total artifacts processed by the retention sweeper, by outcome.",
	}, []string{"outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ScanCycleDuration,
		ScanDueSchedulesTotal,
		ScanEnqueuedTotal,
		PipelineRunDuration,
		PipelineRunsTotal,
		PipelineRunsInFlight,
		CacheHitsTotal,
		CacheMissesTotal,
		BurstAdmissionsTotal,
		RetentionSweepDuration,
		RetentionDeletedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
