package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
)

var phases = []interfaces.Phase{
	interfaces.PhaseWaiting,
	interfaces.PhaseRunning,
	interfaces.PhaseComplete,
}

// CeremonyMetrics implements ceremony.Observer on top of Prometheus collectors.
type CeremonyMetrics struct {
	phase         *prometheus.GaugeVec
	participants  *prometheus.GaugeVec
	capacity      prometheus.Gauge
	currentTurn   prometheus.Gauge
	contributions *prometheus.CounterVec
	retries       *prometheus.CounterVec
}

// NewCeremonyMetrics creates the ceremony collectors and registers them with the server's registry.
func (m *MetricsServer) NewCeremonyMetrics() (*CeremonyMetrics, error) {
	cm := &CeremonyMetrics{
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "ceremony_phase",
			Help:      "1 for the current ceremony phase, 0 otherwise.",
		}, []string{"phase"}),
		participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "ceremony_participants",
			Help:      "Registered participants by state.",
		}, []string{"state"}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "ceremony_capacity",
			Help:      "Maximum number of participants.",
		}),
		currentTurn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "ceremony_current_turn",
			Help:      "Position of the running participant, -1 if none.",
		}),
		contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "ceremony_contributions_total",
			Help:      "Finished participant turns by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "ceremony_persistence_retries_total",
			Help:      "Retried transcript store writes by operation.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{cm.phase, cm.participants, cm.capacity, cm.currentTurn, cm.contributions, cm.retries} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return cm, nil
}

func (cm *CeremonyMetrics) OnSnapshot(snap *ceremony.Snapshot) {
	for _, p := range phases {
		v := 0.0
		if p == snap.Phase {
			v = 1
		}
		cm.phase.WithLabelValues(string(p)).Set(v)
	}
	for state, n := range snap.Counts {
		cm.participants.WithLabelValues(string(state)).Set(float64(n))
	}
	cm.capacity.Set(float64(snap.Capacity))
	cm.currentTurn.Set(float64(snap.CurrentTurn))
}

func (cm *CeremonyMetrics) OnContribution(valid bool, reason string) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	} else if reason == ceremony.TurnTimeoutReason {
		outcome = "timeout"
	}
	cm.contributions.WithLabelValues(outcome).Inc()
}

func (cm *CeremonyMetrics) OnPersistenceRetry(op string) {
	cm.retries.WithLabelValues(op).Inc()
}
