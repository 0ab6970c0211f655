package health

import (
	"strings"
	"testing"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSnapshot(t *testing.T) {
	state := NewState(Configuration{InputManagement: "mark_spent"})

	snapshot := state.Snapshot()
	assert.Equal(t, StatusDisconnected, snapshot.ConnectionStatus)
	assert.Nil(t, snapshot.MostRecentCheckpoint)
	assert.Nil(t, snapshot.MostRecentNodeTip)

	point, err := chain.ParsePoint("42." + strings.Repeat("ab", 32))
	require.NoError(t, err)

	state.SetConnection(StatusConnected)
	state.SetCheckpoint(point)
	state.SetNodeTip(point)

	snapshot = state.Snapshot()
	assert.Equal(t, StatusConnected, snapshot.ConnectionStatus)
	require.NotNil(t, snapshot.MostRecentCheckpoint)
	assert.Equal(t, uint64(42), snapshot.MostRecentCheckpoint.Slot)
	assert.Equal(t, "mark_spent", snapshot.Configuration.InputManagement)
}

func TestWriteText(t *testing.T) {
	state := NewState(Configuration{})
	point, err := chain.ParsePoint("7." + strings.Repeat("ab", 32))
	require.NoError(t, err)
	state.SetConnection(StatusConnected)
	state.SetCheckpoint(point)

	var sb strings.Builder
	require.NoError(t, state.WriteText(&sb))

	text := sb.String()
	assert.Contains(t, text, "kupo_connection_status 1")
	assert.Contains(t, text, "kupo_most_recent_checkpoint 7")
	assert.Contains(t, text, "kupo_most_recent_node_tip 0")
}
