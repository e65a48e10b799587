package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the chain level measurements of a node.
type metrics struct {
	blocks       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	height       prometheus.Gauge
	difficulty   prometheus.Gauge
	balance      prometheus.Gauge
	peers        prometheus.Gauge
}

// newMetrics registers the node metrics with the registerer. A nil
// registerer keeps the metrics private to the node.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	m := metrics{
		blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utxochain",
				Subsystem: "node",
				Name:      "blocks_total",
				Help:      "Blocks processed by the node by outcome.",
			},
			[]string{"result"}, // accepted, rejected, mined, orphaned
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utxochain",
				Subsystem: "node",
				Name:      "transactions_total",
				Help:      "Transactions processed by the node by outcome.",
			},
			[]string{"result"}, // accepted, rejected, sent
		),
		height: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "node",
			Name:      "chain_height",
			Help:      "Height of the longest known chain.",
		}),
		difficulty: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "node",
			Name:      "mining_difficulty",
			Help:      "Difficulty the next mined block must meet.",
		}),
		balance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "node",
			Name:      "balance",
			Help:      "Sum of the unspent outputs owned by the node.",
		}),
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "node",
			Name:      "known_peers",
			Help:      "Number of peers the node received packets from.",
		}),
	}

	return &m
}
