package health

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MostRecentCheckpoint is the slot of the newest stored checkpoint.
	MostRecentCheckpoint = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kupo_most_recent_checkpoint",
			Help: "Slot number of the most recent database checkpoint",
		},
	)

	// MostRecentNodeTip is the slot of the producer's chain tip.
	MostRecentNodeTip = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kupo_most_recent_node_tip",
			Help: "Slot number of the most recent node tip seen from the producer",
		},
	)

	// ConnectionStatusGauge is 1 while connected to the producer.
	ConnectionStatusGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kupo_connection_status",
			Help: "Whether the producer connection is established (1) or not (0)",
		},
	)

	// RequestsTotal counts HTTP requests by method and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kupo_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	// RequestDuration observes HTTP request latency by path shape.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kupo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// BlocksIngested counts blocks folded into the database.
	BlocksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kupo_blocks_ingested_total",
			Help: "Total number of blocks folded into the index",
		},
	)

	// RollbacksTotal counts rollbacks by origin (chain or forced).
	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kupo_rollbacks_total",
			Help: "Total number of rollbacks performed, by trigger",
		},
		[]string{"trigger"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(MostRecentCheckpoint)
	prometheus.MustRegister(MostRecentNodeTip)
	prometheus.MustRegister(ConnectionStatusGauge)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(BlocksIngested)
	prometheus.MustRegister(RollbacksTotal)
}

// WriteText emits the core health gauges in Prometheus exposition format.
// The full registry (including HTTP counters) is served by promhttp; this
// compact form backs the content-negotiated GET /health.
func (s *State) WriteText(w io.Writer) error {
	h := s.Snapshot()

	connected := 0
	if h.ConnectionStatus == StatusConnected {
		connected = 1
	}

	var checkpoint, tip uint64
	if h.MostRecentCheckpoint != nil {
		checkpoint = h.MostRecentCheckpoint.Slot
	}
	if h.MostRecentNodeTip != nil {
		tip = h.MostRecentNodeTip.Slot
	}

	_, err := fmt.Fprintf(w,
		"# TYPE kupo_connection_status gauge\nkupo_connection_status %d\n"+
			"# TYPE kupo_most_recent_checkpoint gauge\nkupo_most_recent_checkpoint %d\n"+
			"# TYPE kupo_most_recent_node_tip gauge\nkupo_most_recent_node_tip %d\n",
		connected, checkpoint, tip)
	return err
}
