// Package metrics defines the Prometheus metrics exposed on the agent's
// /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CycleTotal counts finished update cycles by outcome.
	// result: updated / no_update / failed
	CycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fotad_update_cycles_total",
			Help: "Total number of finished update cycles.",
		},
		[]string{"result"},
	)

	// CycleErrorTotal counts failed cycles by failure class.
	CycleErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fotad_update_cycle_errors_total",
			Help: "Total number of failed update cycles by error kind.",
		},
		[]string{"kind"}, // TransportError/IntegrityError/StorageError/StateCorrupt
	)

	// DownloadedBytes counts artifact payload bytes fetched into scratch.
	DownloadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fotad_downloaded_bytes_total",
			Help: "Total artifact bytes downloaded to the scratch area.",
		},
	)

	// AgentState carries the current state machine state (1 on exactly
	// one label value at any time).
	AgentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fotad_agent_state",
			Help: "Current update agent state (1 for the active state).",
		},
		[]string{"state"},
	)

	// BothFailed mirrors the persistent both-slots-failed flag.
	BothFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fotad_both_slots_failed",
			Help: "1 when the persistent both-slots-failed flag is raised.",
		},
	)
)

func init() {
	prometheus.MustRegister(CycleTotal)
	prometheus.MustRegister(CycleErrorTotal)
	prometheus.MustRegister(DownloadedBytes)
	prometheus.MustRegister(AgentState)
	prometheus.MustRegister(BothFailed)
}

// SetBothFailed mirrors the persisted both-slots-failed flag onto the gauge.
func SetBothFailed(raised bool) {
	if raised {
		BothFailed.Set(1)
		return
	}
	BothFailed.Set(0)
}

// SetAgentState flips the state gauge so exactly one state reports 1.
func SetAgentState(states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1.0
		}
		AgentState.WithLabelValues(s).Set(v)
	}
}
