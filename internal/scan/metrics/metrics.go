package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksAggregated tracks total ledger records derived and committed
	BlocksAggregated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_blocks_aggregated_total",
			Help: "Total number of blocks folded into the ledger",
		},
	)

	// BlocksRejected tracks blocks refused by ledger validation
	BlocksRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_blocks_rejected_total",
			Help: "Total number of blocks rejected by ledger validation",
		},
	)

	// ClampAnomalies tracks redemptions clamped at zero supply
	ClampAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_clamp_anomalies_total",
			Help: "Total number of redemptions clamped at zero circulating supply",
		},
	)

	// ReorgsDetected tracks chain reorganizations detected
	ReorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_reorgs_detected_total",
			Help: "Total number of chain reorganizations detected",
		},
	)

	// RollbacksCompleted tracks rollback and rescan runs completed
	RollbacksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_rollbacks_completed_total",
			Help: "Total number of rollback and rescan runs completed",
		},
	)

	// ReserveMismatches tracks reconciliation mismatches found
	ReserveMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_reserve_mismatches_total",
			Help: "Total number of reserve reconciliation mismatches",
		},
	)

	// SelfHeals tracks forced reconciliations that overwrote diverged fields
	SelfHeals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zephscan_self_heals_total",
			Help: "Total number of forced reconciliations applied",
		},
	)

	// RPCCallsTotal tracks daemon RPC calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zephscan_rpc_calls_total",
			Help: "Total number of daemon RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks daemon RPC errors per method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zephscan_rpc_errors_total",
			Help: "Total number of daemon RPC errors",
		},
		[]string{"method"},
	)

	// ChainHeight tracks the daemon's reported chain height
	ChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zephscan_chain_height",
			Help: "Latest block height reported by the daemon",
		},
	)

	// AggregatorHeight tracks the latest height folded into the ledger
	AggregatorHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zephscan_aggregator_height",
			Help: "Latest block height folded into the ledger",
		},
	)

	// PriceHeight tracks the latest height with a stored pricing record
	PriceHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zephscan_price_height",
			Help: "Latest block height with a stored pricing record",
		},
	)

	// TxHeight tracks the latest height with scanned transactions
	TxHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zephscan_tx_height",
			Help: "Latest block height with scanned transactions",
		},
	)

	// CycleDuration tracks wall time per scan cycle
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zephscan_cycle_duration_seconds",
			Help:    "Scan cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
