// Package metrics declares the Prometheus instruments for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollCyclesTotal counts fetch-and-merge cycles by outcome.
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpbmon_poll_cycles_total",
			Help: "Total fetch-and-merge cycles by outcome",
		},
		[]string{"outcome"},
	)

	// SlotMergesTotal counts slot snapshot merges by gate result.
	SlotMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpbmon_slot_merges_total",
			Help: "Total slot snapshot merges by version gate result",
		},
		[]string{"result"},
	)

	// MutationsTotal counts slot-clear mutations by operation and outcome.
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpbmon_mutations_total",
			Help: "Total slot-clear mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)
)

const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeRejected       = "rejected"

	MergeApplied = "applied"
	MergeStale   = "stale"
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
