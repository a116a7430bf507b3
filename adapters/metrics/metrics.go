// Package metrics provides Prometheus metrics collection for bundlekeeper.
package metrics

import (
	"time"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bundlekeeper"

// Collector holds all Prometheus metrics for bundlekeeper.
type Collector struct {
	// Allowance gauges
	RemainingMB  prometheus.Gauge
	UsedTodayMB  prometheus.Gauge
	TotalUsedMB  prometheus.Gauge
	ExpiryTime   prometheus.Gauge
	NextResetSec prometheus.Gauge

	// Check cycle metrics
	Cycles              prometheus.Counter
	RateMBPerMinute     prometheus.Gauge
	ETAMinutes          prometheus.Gauge
	NextIntervalMinutes prometheus.Gauge

	// Renewal metrics
	RenewalAttempts *prometheus.CounterVec
	Renewals        *prometheus.CounterVec

	// Resync and manual operation metrics
	Resyncs      *prometheus.CounterVec
	UsageMB      prometheus.Counter
	ManualTopUps *prometheus.CounterVec

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Collector{
		RemainingMB:  gauge("remaining_mb", "Locally estimated remaining allowance in MB"),
		UsedTodayMB:  gauge("used_today_mb", "Allowance used since the last daily reset in MB"),
		TotalUsedMB:  gauge("total_used_mb", "Allowance used over the lifetime of the store in MB"),
		ExpiryTime:   gauge("bundle_expiry_timestamp", "Unix timestamp of bundle expiry, 0 when unset"),
		NextResetSec: gauge("next_reset_timestamp", "Unix timestamp of the next daily reset"),

		Cycles: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_cycles_total",
				Help:      "Total number of completed check cycles",
			},
		),
		RateMBPerMinute:     gauge("consumption_rate_mb_per_minute", "Estimated consumption rate"),
		ETAMinutes:          gauge("estimated_depletion_minutes", "Estimated minutes to depletion, -1 when undefined"),
		NextIntervalMinutes: gauge("next_check_interval_minutes", "Adaptive interval until the next check"),

		RenewalAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renewal_attempts_total",
				Help:      "Purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		Renewals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renewals_total",
				Help:      "Renewal sequences by result",
			},
			[]string{"result"},
		),

		Resyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resyncs_total",
				Help:      "Balance resync attempts by result",
			},
			[]string{"result"},
		),
		UsageMB: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_recorded_mb_total",
				Help:      "Total usage recorded in MB",
			},
		),
		ManualTopUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manual_topups_total",
				Help:      "Manual bundle additions, replayed keys included",
			},
			[]string{"replayed"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: gauge("requests_in_flight", "Number of HTTP requests currently being processed"),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: gauge("config_last_reload_timestamp", "Unix timestamp of last successful config reload"),
	}
}

// ObserveState publishes the allowance gauges.
func (c *Collector) ObserveState(st bundle.State) {
	c.RemainingMB.Set(st.RemainingMB)
	c.UsedTodayMB.Set(st.UsedTodayMB)
	c.TotalUsedMB.Set(st.TotalUsedMB)
	c.ExpiryTime.Set(unixOrZero(st.ExpiresAt))
	c.NextResetSec.Set(unixOrZero(st.NextResetAt))
}

// ObserveCycle records a completed check cycle.
func (c *Collector) ObserveCycle(rate, etaMinutes float64, etaDefined bool, nextIntervalMinutes float64) {
	c.Cycles.Inc()
	c.RateMBPerMinute.Set(rate)
	if etaDefined {
		c.ETAMinutes.Set(etaMinutes)
	} else {
		c.ETAMinutes.Set(-1)
	}
	c.NextIntervalMinutes.Set(nextIntervalMinutes)
}

// RenewalAttempt counts one purchase attempt.
func (c *Collector) RenewalAttempt(outcome string) {
	c.RenewalAttempts.WithLabelValues(outcome).Inc()
}

// RenewalFinished counts a renewal sequence.
func (c *Collector) RenewalFinished(succeeded bool) {
	c.Renewals.WithLabelValues(resultLabel(succeeded)).Inc()
}

// Resync counts a balance resync attempt.
func (c *Collector) Resync(ok bool) {
	c.Resyncs.WithLabelValues(resultLabel(ok)).Inc()
}

// UsageRecorded adds consumed MB.
func (c *Collector) UsageRecorded(mb float64) {
	if mb > 0 {
		c.UsageMB.Add(mb)
	}
}

// ManualTopUp counts a manual credit request.
func (c *Collector) ManualTopUp(replayed bool) {
	if replayed {
		c.ManualTopUps.WithLabelValues("true").Inc()
		return
	}
	c.ManualTopUps.WithLabelValues("false").Inc()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// Ensure interface compliance.
var _ ports.Metrics = (*Collector)(nil)

// Nop discards all measurements.
type Nop struct{}

func (Nop) ObserveState(bundle.State) {}
func (Nop) ObserveCycle(float64, float64, bool, float64) {}
func (Nop) RenewalAttempt(string) {}
func (Nop) RenewalFinished(bool) {}
func (Nop) Resync(bool) {}
func (Nop) UsageRecorded(float64) {}
func (Nop) ManualTopUp(bool) {}

// Ensure interface compliance.
var _ ports.Metrics = Nop{}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func unixOrZero(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix())
}

// NormalizePath bounds label cardinality for unmatched paths.
func NormalizePath(path string) string {
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}
