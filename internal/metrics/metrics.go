// Package metrics holds the Prometheus collectors shared across Mycelia's
// coordination components, registered on an isolated registry so they
// never collide with a process-wide default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every custom Mycelia Prometheus collector. A single
// instance is constructed at startup. The LoRa bridge is the one component
// it is injected into, and it updates DedupDuplicatesTotal and
// LoRaChunksTotal; the other collectors are registered but no component
// updates them.
type Metrics struct {
	Registry *prometheus.Registry

	CreditTransfersTotal        *prometheus.CounterVec
	ElectionPhaseTransitions    *prometheus.CounterVec
	SeptalGateState             *prometheus.GaugeVec
	DedupDuplicatesTotal        *prometheus.CounterVec
	LoRaChunksTotal             *prometheus.CounterVec
	RaftAppliedIndex            prometheus.Gauge

	BuildInfo *prometheus.GaugeVec
}

// New constructs a Metrics instance with every collector registered on a
// fresh registry.
func New(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		CreditTransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_credit_transfers_total",
				Help: "Total number of credit transfers applied, by outcome.",
			},
			[]string{"outcome"},
		),
		ElectionPhaseTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_election_phase_transitions_total",
				Help: "Total number of election phase transitions, by phase.",
			},
			[]string{"phase"},
		),
		SeptalGateState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mycelia_septal_gate_state",
				Help: "Current septal gate state per peer (1 = active state, 0 otherwise).",
			},
			[]string{"peer", "state"},
		),
		DedupDuplicatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_dedup_duplicates_total",
				Help: "Total number of messages rejected as duplicates, by source.",
			},
			[]string{"source"},
		),
		LoRaChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mycelia_lora_chunks_total",
				Help: "Total number of LoRa chunks processed, by direction.",
			},
			[]string{"direction"},
		),
		RaftAppliedIndex: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mycelia_raft_applied_index",
				Help: "Highest Raft log index applied to the replicated ledger's state machine.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mycelia_info",
				Help: "Build information for the running Mycelia instance.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.CreditTransfersTotal,
		m.ElectionPhaseTransitions,
		m.SeptalGateState,
		m.DedupDuplicatesTotal,
		m.LoRaChunksTotal,
		m.RaftAppliedIndex,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)
	return m
}

// Handler returns an http.Handler serving this Metrics instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
