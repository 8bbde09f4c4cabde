// Package metrics registers the Prometheus collectors exposed on the
// gin admin surface's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chesscore_matchmaking_queue_depth",
		Help: "Current number of players waiting in a match queue",
	}, []string{"gameType"})

	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chesscore_active_games",
		Help: "Current number of games in progress on this node",
	})

	MatchesPaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chesscore_matches_paired_total",
		Help: "Total number of matchmaking pairings completed",
	})

	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chesscore_moves_applied_total",
		Help: "Total number of moves successfully applied",
	})

	IllegalMoveAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chesscore_illegal_move_attempts_total",
		Help: "Total number of moves rejected as illegal",
	})

	GamesFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chesscore_games_finalized_total",
		Help: "Total number of games finalized, by end reason",
	}, []string{"reason"})

	TimeoutForfeits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chesscore_timeout_forfeits_total",
		Help: "Total number of games ended by clock scanner timeout",
	})

	ClockScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chesscore_clock_scan_duration_seconds",
		Help:    "Duration of one 1Hz clock scanner pass",
		Buckets: prometheus.DefBuckets,
	})

	PipelineBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chesscore_persistence_batch_size",
		Help:    "Size of batches flushed to the durable store",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	}, []string{"priority"})

	PipelineDeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chesscore_persistence_dead_letters_total",
		Help: "Total number of jobs routed to the dead letter sink after exhausting retries",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chesscore_websocket_connections",
		Help: "Current number of live WebSocket connections on this node",
	})

	EventBusPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chesscore_eventbus_publish_failures_total",
		Help: "Total number of EventBus publishes that failed to reach Redis",
	}, []string{"channel"})
)
