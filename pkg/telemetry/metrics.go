package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for CloudTrim.
type Metrics struct {
	config MetricsConfig

	// Execution metrics
	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec

	// Step metrics
	stepRetries *prometheus.CounterVec

	// Rollback metrics
	rollbacks *prometheus.CounterVec

	// Gateway metrics
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayErrors   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Savings metrics
	savingsRealized *prometheus.CounterVec

	// System metrics
	activeExecutions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Execution metrics
		executionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_started_total",
				Help:      "Total number of optimization executions started",
			},
			[]string{"optimization_type", "provider"},
		),
		executionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_finished_total",
				Help:      "Total number of optimization executions finished",
			},
			[]string{"optimization_type", "status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of optimization executions in seconds",
				Buckets:   buckets,
			},
			[]string{"optimization_type", "status"},
		),

		// Step metrics
		stepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retry attempts",
			},
			[]string{"phase"},
		),

		// Rollback metrics
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of rollback attempts",
			},
			[]string{"optimization_type", "status"},
		),

		// Gateway metrics
		gatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Total number of cloud gateway calls",
			},
			[]string{"provider", "operation"},
		),
		gatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Duration of cloud gateway calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "operation"},
		),
		gatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_errors_total",
				Help:      "Total number of cloud gateway errors",
			},
			[]string{"provider", "operation"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Savings metrics
		savingsRealized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "savings_realized_usd_total",
				Help:      "Total realized monthly savings in USD",
			},
			[]string{"optimization_type"},
		),

		// System metrics
		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Current number of in-flight executions",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.executionsStarted,
		m.executionsFinished,
		m.executionDuration,
		m.stepRetries,
		m.rollbacks,
		m.gatewayCalls,
		m.gatewayDuration,
		m.gatewayErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.savingsRealized,
		m.activeExecutions,
	)

	return m, nil
}

// Execution Metrics

// RecordExecutionStarted increments the counter for started executions.
func (m *Metrics) RecordExecutionStarted(optimizationType, provider string) {
	if m == nil || m.executionsStarted == nil {
		return
	}
	m.executionsStarted.WithLabelValues(optimizationType, provider).Inc()
	m.activeExecutions.Inc()
}

// RecordExecutionFinished records a finished execution with its terminal
// status and duration.
func (m *Metrics) RecordExecutionFinished(optimizationType, status string, duration time.Duration) {
	if m == nil || m.executionsFinished == nil {
		return
	}
	m.executionsFinished.WithLabelValues(optimizationType, status).Inc()
	m.executionDuration.WithLabelValues(optimizationType, status).Observe(duration.Seconds())
	m.activeExecutions.Dec()
}

// Step Metrics

// RecordStepRetries adds the retry attempts a step consumed.
func (m *Metrics) RecordStepRetries(phase string, count int) {
	if m == nil || m.stepRetries == nil {
		return
	}
	m.stepRetries.WithLabelValues(phase).Add(float64(count))
}

// Rollback Metrics

// RecordRollback records a rollback attempt and whether it completed.
func (m *Metrics) RecordRollback(optimizationType string, completed bool) {
	if m == nil || m.rollbacks == nil {
		return
	}
	status := "failed"
	if completed {
		status = "completed"
	}
	m.rollbacks.WithLabelValues(optimizationType, status).Inc()
}

// Gateway Metrics

// RecordGatewayCall records a gateway call with its duration.
func (m *Metrics) RecordGatewayCall(provider, operation string, duration time.Duration) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(provider, operation).Inc()
	m.gatewayDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordGatewayError records a gateway error.
func (m *Metrics) RecordGatewayError(provider, operation string) {
	if m == nil || m.gatewayErrors == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(provider, operation).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Savings Metrics

// RecordSavings adds realized monthly savings for a completed execution.
func (m *Metrics) RecordSavings(optimizationType string, amount float64) {
	if m == nil || m.savingsRealized == nil {
		return
	}
	if amount < 0 {
		return
	}
	m.savingsRealized.WithLabelValues(optimizationType).Add(amount)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
