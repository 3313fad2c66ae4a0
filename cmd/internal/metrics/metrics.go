// Package metrics holds the Prometheus instrumentation for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the session service.
type Collector struct {
	sessionsCreated    prometheus.Counter
	sessionsTerminated *prometheus.CounterVec
	sessionsRenewed    prometheus.Counter
	ipPoolState        *prometheus.GaugeVec
	sweepRuns          *prometheus.CounterVec
	quarantineReleased prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wgsd_sessions_created_total",
				Help: "Total number of VPN sessions created",
			},
		),
		sessionsTerminated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wgsd_sessions_terminated_total",
				Help: "Total number of sessions terminated, by reason",
			},
			[]string{"reason"},
		),
		sessionsRenewed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wgsd_sessions_renewed_total",
				Help: "Total number of session renewals",
			},
		),
		ipPoolState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wgsd_ip_pool_entries",
				Help: "Number of IP pool entries per state",
			},
			[]string{"state"},
		),
		sweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wgsd_reconcile_sweeps_total",
				Help: "Total number of reconciler sweeps, by worker and result",
			},
			[]string{"worker", "result"},
		),
		quarantineReleased: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wgsd_quarantine_released_total",
				Help: "Total number of IPs released from quarantine",
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wgsd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "status"},
		),
	}

	reg.MustRegister(
		c.sessionsCreated,
		c.sessionsTerminated,
		c.sessionsRenewed,
		c.ipPoolState,
		c.sweepRuns,
		c.quarantineReleased,
		c.requestDuration,
	)

	return c
}

// SessionCreated increments the created-sessions counter.
func (c *Collector) SessionCreated() {
	c.sessionsCreated.Inc()
}

// SessionTerminated increments the terminated counter for a reason
// ("manual", "expired", "admin").
func (c *Collector) SessionTerminated(reason string) {
	c.sessionsTerminated.WithLabelValues(reason).Inc()
}

// SessionRenewed increments the renewals counter.
func (c *Collector) SessionRenewed() {
	c.sessionsRenewed.Inc()
}

// SetIPPoolState sets the pool gauge for one state.
func (c *Collector) SetIPPoolState(state string, n int) {
	c.ipPoolState.WithLabelValues(state).Set(float64(n))
}

// SweepRun records one reconciler pass ("ok" or "fail").
func (c *Collector) SweepRun(worker, result string) {
	c.sweepRuns.WithLabelValues(worker, result).Inc()
}

// QuarantineReleased adds n to the released-from-quarantine counter.
func (c *Collector) QuarantineReleased(n int) {
	c.quarantineReleased.Add(float64(n))
}

// ObserveRequest records one HTTP request duration.
func (c *Collector) ObserveRequest(method string, status int, d time.Duration) {
	c.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}
