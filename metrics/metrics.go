// Package metrics exposes Prometheus collectors for the coordination core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the namespace of all the collectors.
const Namespace = "relay"

// Rebalance reasons.
const (
	ReasonNodeFailure = "node_failure"
	ReasonManual      = "manual"
)

// Metrics holds the collectors updated by masters, slaves and the leader.
type Metrics struct {
	sent       prometheus.Counter
	claimed    *prometheus.CounterVec
	committed  *prometheus.CounterVec
	recovered  *prometheus.CounterVec
	expired    prometheus.Counter
	rebalances *prometheus.CounterVec
	leader     prometheus.Gauge
}

// New creates the collectors and registers them with reg if not nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_sent_total",
			Help:      "Number of tasks added to a priority queue.",
		}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_claimed_total",
			Help:      "Number of tasks moved into a node ledger.",
		}, []string{"role"}),
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_committed_total",
			Help:      "Number of tasks removed from a node ledger after completion.",
		}, []string{"role"}),
		recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_recovered_total",
			Help:      "Number of in-flight tasks handed back after a node expired, by role of the expired node.",
		}, []string{"role"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "nodes_expired_total",
			Help:      "Number of nodes detected as expired by the leader.",
		}),
		rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rebalances_total",
			Help:      "Number of queue assignment changes triggered by the leader.",
		}, []string{"reason"}),
		leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "leader",
			Help:      "1 while this process holds the leadership, 0 otherwise.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.sent, m.claimed, m.committed, m.recovered, m.expired, m.rebalances, m.leader}
}

// TaskSent records a task added to a priority queue.
func (m *Metrics) TaskSent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

// TaskClaimed records a task claimed by a node with the given role.
func (m *Metrics) TaskClaimed(role string) {
	if m == nil {
		return
	}
	m.claimed.WithLabelValues(role).Inc()
}

// TaskCommitted records a task committed by a node with the given role.
func (m *Metrics) TaskCommitted(role string) {
	if m == nil {
		return
	}
	m.committed.WithLabelValues(role).Inc()
}

// TasksRecovered records n tasks recovered from an expired node.
func (m *Metrics) TasksRecovered(role string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recovered.WithLabelValues(role).Add(float64(n))
}

// NodeExpired records an expired node.
func (m *Metrics) NodeExpired() {
	if m == nil {
		return
	}
	m.expired.Inc()
}

// Rebalanced records a rebalance triggered for the given reason.
func (m *Metrics) Rebalanced(reason string) {
	if m == nil {
		return
	}
	m.rebalances.WithLabelValues(reason).Inc()
}

// SetLeader records whether this process holds the leadership.
func (m *Metrics) SetLeader(leader bool) {
	if m == nil {
		return
	}
	v := 0.0
	if leader {
		v = 1
	}
	m.leader.Set(v)
}
