// Package bot – Prometheus instrumentation for update processing.
//
// Labels stay low-cardinality on purpose: update types, outcome kinds, and
// reward kinds are all small closed sets.
package bot

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// botUpdates counts processed updates by payload type.
	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of Telegram updates processed.",
		},
		[]string{"type"},
	)

	// botUpdatesDuplicate counts updates dropped by delivery dedup.
	botUpdatesDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_updates_duplicate_total",
			Help: "Updates skipped because their id was already processed.",
		},
	)

	// botOutcomes counts redemption decisions by outcome kind.
	botOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_redemption_outcomes_total",
			Help: "Redemption flow outcomes handed to users.",
		},
		[]string{"outcome"},
	)

	// botPublishes counts admin publishes by reward kind and result.
	botPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_publish_total",
			Help: "Channel button publishes by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(botUpdates, botUpdatesDuplicate, botOutcomes, botPublishes)
}
