package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySnapshotIsolation(t *testing.T) {
	registry := NewRegistry([]Pattern{mustParse(t, "*@"+txIDHex)})

	before := registry.Snapshot()
	require.Len(t, before, 1)

	registry.Add(mustParse(t, policyHex+".*"))

	// The earlier snapshot is immutable; a fresh one sees the addition.
	assert.Len(t, before, 1)
	assert.Len(t, registry.Snapshot(), 2)
}

func TestRegistryAddDeduplicates(t *testing.T) {
	registry := NewRegistry(nil)

	assert.True(t, registry.Add(mustParse(t, "*")))
	assert.False(t, registry.Add(mustParse(t, "*")))
	assert.Len(t, registry.Snapshot(), 1)
}

func TestRegistryRemoveByInclusion(t *testing.T) {
	registry := NewRegistry([]Pattern{
		mustParse(t, policyHex+".*"),
		mustParse(t, policyHex+".6b75706f"),
		mustParse(t, paymentHex+"/*"),
	})

	// Removing the policy pattern takes the asset pattern with it.
	removed := registry.Remove(mustParse(t, policyHex+".*"))
	assert.Len(t, removed, 2)

	remaining := registry.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, paymentHex+"/*", remaining[0].String())
}

func TestRegistrySubscribers(t *testing.T) {
	registry := NewRegistry(nil)
	sub := registry.Subscribe()
	defer registry.Unsubscribe(sub)

	registry.Add(mustParse(t, "*"))
	change := <-sub
	assert.Equal(t, ChangeAdded, change.Type)
	assert.Equal(t, "*", change.Pattern.String())

	registry.Remove(mustParse(t, "*"))
	change = <-sub
	assert.Equal(t, ChangeRemoved, change.Type)
}
