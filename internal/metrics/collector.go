// Package nat64metrics exposes the translation core's runtime counters
// and gauges as Prometheus metrics: pool4 exhaustion, BIB/session
// population, and TCP FSM transitions.
package nat64metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gonat64/gonat64/internal/nat64"
)

const (
	namespace = "gonat64"
	subsystem = "translate"
)

const (
	labelProto = "proto"
	labelClass = "class"
	labelFrom  = "from_state"
	labelTo    = "to_state"
)

// Collector holds every gonat64 Prometheus metric. It satisfies
// nat64.MetricsReporter, so a *Collector can be wired straight into
// nat64.NewManager via nat64.WithManagerMetrics.
//
//   - BIB/session gauges track live translation state.
//   - Pool4 exhaustion and session-reclaim counters flag capacity and
//     churn.
//   - FSM transition counters record TCP state changes for alerting.
type Collector struct {
	PoolExhausted     *prometheus.CounterVec
	BIBCount          *prometheus.GaugeVec
	SessionCount      *prometheus.GaugeVec
	SessionsCreated   *prometheus.CounterVec
	SessionsReclaimed *prometheus.CounterVec
	FSMTransitions    *prometheus.CounterVec
}

// NewCollector creates a Collector with every gonat64 metric registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PoolExhausted,
		c.BIBCount,
		c.SessionCount,
		c.SessionsCreated,
		c.SessionsReclaimed,
		c.FSMTransitions,
	)

	return c
}

func newMetrics() *Collector {
	protoLabels := []string{labelProto}
	classLabels := []string{labelProto, labelClass}
	transitionLabels := []string{labelFrom, labelTo}

	return &Collector{
		PoolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool4_exhausted_total",
			Help:      "Total Pool4 allocation attempts that found no free port.",
		}, protoLabels),

		BIBCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bib_entries",
			Help:      "Number of currently live BIB entries.",
		}, protoLabels),

		SessionCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently live sessions.",
		}, protoLabels),

		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_created_total",
			Help:      "Total sessions created.",
		}, protoLabels),

		SessionsReclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_reclaimed_total",
			Help:      "Total sessions reclaimed by the expiry sweep, by the class they were reclaimed from.",
		}, classLabels),

		FSMTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tcp_fsm_transitions_total",
			Help:      "Total TCP FSM state transitions.",
		}, transitionLabels),
	}
}

// IncPoolExhausted implements nat64.MetricsReporter.
func (c *Collector) IncPoolExhausted(proto nat64.Protocol) {
	c.PoolExhausted.WithLabelValues(proto.String()).Inc()
}

// SetBIBCount implements nat64.MetricsReporter.
func (c *Collector) SetBIBCount(proto nat64.Protocol, n int) {
	c.BIBCount.WithLabelValues(proto.String()).Set(float64(n))
}

// SetSessionCount implements nat64.MetricsReporter.
func (c *Collector) SetSessionCount(proto nat64.Protocol, n int) {
	c.SessionCount.WithLabelValues(proto.String()).Set(float64(n))
}

// IncSessionsCreated implements nat64.MetricsReporter.
func (c *Collector) IncSessionsCreated(proto nat64.Protocol) {
	c.SessionsCreated.WithLabelValues(proto.String()).Inc()
}

// IncSessionsReclaimed implements nat64.MetricsReporter.
func (c *Collector) IncSessionsReclaimed(proto nat64.Protocol, class nat64.ExpiryClass) {
	c.SessionsReclaimed.WithLabelValues(proto.String(), class.String()).Inc()
}

// IncFSMTransition implements nat64.MetricsReporter.
func (c *Collector) IncFSMTransition(from, to nat64.SessionState) {
	c.FSMTransitions.WithLabelValues(from.String(), to.String()).Inc()
}
