package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AllocationMetrics tracks allocator outcomes on the booking critical path.
type AllocationMetrics struct {
	attempts  *prometheus.CounterVec
	conflicts prometheus.Counter
}

// NewAllocationMetrics registers allocator metrics on the provided registerer.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_attempts_total",
		Help: "Allocation attempts by outcome.",
	}, []string{"outcome"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_lock_conflicts_total",
		Help: "Allocation attempts that hit lock contention and were retried.",
	})
	reg.MustRegister(attempts, conflicts)
	return &AllocationMetrics{attempts: attempts, conflicts: conflicts}
}

// IncOutcome records one allocation attempt result (allocated, insufficient,
// conflict, error).
func (m *AllocationMetrics) IncOutcome(outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// IncLockConflict records a retried lock conflict.
func (m *AllocationMetrics) IncLockConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}
