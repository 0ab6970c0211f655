package health

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/kupo/pkg/chain"
)

// ConnectionStatus describes the link to the block producer.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Configuration is the subset of startup configuration echoed by /health.
type Configuration struct {
	InputManagement string `json:"prune_utxo"`
}

// Health is the aggregated snapshot served to clients.
type Health struct {
	ConnectionStatus     ConnectionStatus `json:"connection_status"`
	MostRecentCheckpoint *chain.Point     `json:"most_recent_checkpoint"`
	MostRecentNodeTip    *chain.Point     `json:"most_recent_node_tip"`
	Configuration        Configuration    `json:"configuration"`
}

// State is the process-wide mutable health cell. Components publish into
// it; the HTTP layer and the Prometheus formatter read snapshots.
type State struct {
	mu     sync.RWMutex
	health Health
}

// NewState creates a health cell reporting disconnected until the producer
// says otherwise.
func NewState(cfg Configuration) *State {
	return &State{health: Health{
		ConnectionStatus: StatusDisconnected,
		Configuration:    cfg,
	}}
}

// Snapshot returns the current aggregated health.
func (s *State) Snapshot() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// SetConnection publishes the producer connection status.
func (s *State) SetConnection(status ConnectionStatus) {
	s.mu.Lock()
	s.health.ConnectionStatus = status
	s.mu.Unlock()

	if status == StatusConnected {
		ConnectionStatusGauge.Set(1)
	} else {
		ConnectionStatusGauge.Set(0)
	}
}

// SetCheckpoint publishes the most recent checkpoint.
func (s *State) SetCheckpoint(point chain.Point) {
	s.mu.Lock()
	p := point
	s.health.MostRecentCheckpoint = &p
	s.mu.Unlock()

	MostRecentCheckpoint.Set(float64(point.Slot))
}

// SetNodeTip publishes the producer's view of the chain tip.
func (s *State) SetNodeTip(point chain.Point) {
	s.mu.Lock()
	p := point
	s.health.MostRecentNodeTip = &p
	s.mu.Unlock()

	MostRecentNodeTip.Set(float64(point.Slot))
}

// MarshalJSON renders the aggregated health object.
func (h Health) MarshalJSON() ([]byte, error) {
	type alias Health
	return json.Marshal(alias(h))
}
