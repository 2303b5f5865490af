package nat64metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	nat64metrics "github.com/gonat64/gonat64/internal/metrics"
	"github.com/gonat64/gonat64/internal/nat64"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := nat64metrics.NewCollector(reg)

	if c.PoolExhausted == nil {
		t.Error("PoolExhausted is nil")
	}
	if c.BIBCount == nil {
		t.Error("BIBCount is nil")
	}
	if c.SessionCount == nil {
		t.Error("SessionCount is nil")
	}
	if c.SessionsCreated == nil {
		t.Error("SessionsCreated is nil")
	}
	if c.SessionsReclaimed == nil {
		t.Error("SessionsReclaimed is nil")
	}
	if c.FSMTransitions == nil {
		t.Error("FSMTransitions is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestPoolExhaustedCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := nat64metrics.NewCollector(reg)

	c.IncPoolExhausted(nat64.ProtoTCP)
	c.IncPoolExhausted(nat64.ProtoTCP)
	c.IncPoolExhausted(nat64.ProtoUDP)

	if got := counterValue(t, c.PoolExhausted, "tcp"); got != 2 {
		t.Errorf("PoolExhausted(tcp) = %v, want 2", got)
	}
	if got := counterValue(t, c.PoolExhausted, "udp"); got != 1 {
		t.Errorf("PoolExhausted(udp) = %v, want 1", got)
	}
}

func TestBIBAndSessionGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := nat64metrics.NewCollector(reg)

	c.SetBIBCount(nat64.ProtoUDP, 5)
	c.SetSessionCount(nat64.ProtoUDP, 12)

	if got := gaugeValue(t, c.BIBCount, "udp"); got != 5 {
		t.Errorf("BIBCount(udp) = %v, want 5", got)
	}
	if got := gaugeValue(t, c.SessionCount, "udp"); got != 12 {
		t.Errorf("SessionCount(udp) = %v, want 12", got)
	}
}

func TestSessionsCreatedAndReclaimed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := nat64metrics.NewCollector(reg)

	c.IncSessionsCreated(nat64.ProtoTCP)
	c.IncSessionsCreated(nat64.ProtoTCP)
	c.IncSessionsReclaimed(nat64.ProtoTCP, nat64.ClassTCPTrans)

	if got := counterValue(t, c.SessionsCreated, "tcp"); got != 2 {
		t.Errorf("SessionsCreated(tcp) = %v, want 2", got)
	}
	if got := counterValue(t, c.SessionsReclaimed, "tcp", "tcp-trans"); got != 1 {
		t.Errorf("SessionsReclaimed(tcp, tcp-trans) = %v, want 1", got)
	}
}

func TestFSMTransitionCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := nat64metrics.NewCollector(reg)

	c.IncFSMTransition(nat64.StateV6SynRcv, nat64.StateEstablished)
	c.IncFSMTransition(nat64.StateV6SynRcv, nat64.StateEstablished)

	if got := counterValue(t, c.FSMTransitions, "v6-syn-rcv", "established"); got != 2 {
		t.Errorf("FSMTransitions(v6-syn-rcv, established) = %v, want 2", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
