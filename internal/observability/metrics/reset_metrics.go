package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ResetJobReasonDeadlineExceeded = "deadline_exceeded"
	ResetJobReasonDB               = "db"
	ResetJobReasonIneligible       = "ineligible"
	ResetJobReasonUnknown          = "unknown"
)

// ResetMetrics captures period-reset processor health signals.
type ResetMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	creditsAllocated *prometheus.CounterVec
	rolloverApplied  *prometheus.CounterVec
	runLoopLag       prometheus.Observer
}

var (
	resetMetricsOnce sync.Once
	resetMetrics     *ResetMetrics
)

// ResetProcessor returns the singleton reset-processor metrics registry.
func ResetProcessor() *ResetMetrics {
	return ResetProcessorWithConfig(Config{})
}

// ResetProcessorWithConfig returns the singleton reset-processor metrics
// registry using config labels.
func ResetProcessorWithConfig(cfg Config) *ResetMetrics {
	resetMetricsOnce.Do(func() {
		resetMetrics = newResetMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return resetMetrics
}

// ResetProcessorMetricsForTest resets the singleton for tests.
func ResetProcessorMetricsForTest() {
	resetMetricsOnce = sync.Once{}
	resetMetrics = nil
}

func newResetMetrics(registerer prometheus.Registerer, cfg Config) *ResetMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "creditledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creditledger_reset_job_runs_total",
		Help:        "Reset processor job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "creditledger_reset_job_duration_seconds",
		Help:        "Reset processor job latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creditledger_reset_job_timeouts_total",
		Help:        "Reset processor jobs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creditledger_reset_job_errors_total",
		Help:        "Reset processor job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	creditsAllocated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creditledger_reset_credits_allocated_total",
		Help:        "Credits allocated by period resets.",
		ConstLabels: constLabels,
	}, []string{"module_code", "credit_type"})
	rolloverApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creditledger_reset_rollover_applied_total",
		Help:        "Credits carried over by period resets.",
		ConstLabels: constLabels,
	}, []string{"module_code", "credit_type"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "creditledger_reset_runloop_lag_seconds",
		Help:        "Reset sweep loop lag beyond the configured interval.",
		Buckets:     prometheus.ExponentialBuckets(0.1, 2, 10),
		ConstLabels: constLabels,
	})

	for _, collector := range []prometheus.Collector{
		jobRuns, jobDuration, jobTimeouts, jobErrors, creditsAllocated, rolloverApplied, runLoopLag,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return &ResetMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		creditsAllocated: creditsAllocated,
		rolloverApplied:  rolloverApplied,
		runLoopLag:       runLoopLag,
	}
}

func (m *ResetMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *ResetMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *ResetMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *ResetMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, classifyResetJobError(err)).Inc()
}

func (m *ResetMetrics) AddCreditsAllocated(moduleCode, creditType string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsAllocated.WithLabelValues(moduleCode, creditType).Add(float64(amount))
}

func (m *ResetMetrics) AddRolloverApplied(moduleCode, creditType string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.rolloverApplied.WithLabelValues(moduleCode, creditType).Add(float64(amount))
}

func (m *ResetMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil || lag <= 0 {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}

func classifyResetJobError(err error) string {
	switch {
	case err == nil:
		return ResetJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ResetJobReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, gorm.ErrInvalidDB):
		return ResetJobReasonDB
	default:
		return ResetJobReasonUnknown
	}
}
