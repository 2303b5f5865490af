package nat64

// MetricsReporter is the seam between the translation core and
// internal/metrics. A noopMetrics is used whenever the caller does not
// wire a real collector, so the core never has to nil-check.
type MetricsReporter interface {
	IncPoolExhausted(proto Protocol)
	SetBIBCount(proto Protocol, n int)
	SetSessionCount(proto Protocol, n int)
	IncSessionsCreated(proto Protocol)
	IncSessionsReclaimed(proto Protocol, class ExpiryClass)
	IncFSMTransition(from, to SessionState)
}

type noopMetrics struct{}

func (noopMetrics) IncPoolExhausted(Protocol)                 {}
func (noopMetrics) SetBIBCount(Protocol, int)                 {}
func (noopMetrics) SetSessionCount(Protocol, int)             {}
func (noopMetrics) IncSessionsCreated(Protocol)               {}
func (noopMetrics) IncSessionsReclaimed(Protocol, ExpiryClass) {}
func (noopMetrics) IncFSMTransition(SessionState, SessionState) {}
