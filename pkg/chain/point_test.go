package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hash20 = "2208e439244a1d0ef238352e3693098aba9de9dd0154f9812f8f4ecfeb40ddb5"

// TestParsePoint tests the canonical text form round trip
func TestParsePoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		origin  bool
		slot    uint64
	}{
		{name: "origin", input: "origin", origin: true},
		{name: "slot and hash", input: "20." + hash20, slot: 20},
		{name: "large slot", input: "18446744073709551615." + hash20, slot: 18446744073709551615},
		{name: "empty", input: "", wantErr: true},
		{name: "no dot", input: "42", wantErr: true},
		{name: "missing hash", input: "42.", wantErr: true},
		{name: "short hash", input: "42.abcd", wantErr: true},
		{name: "non-hex hash", input: "42." + strings.Repeat("zz", 32), wantErr: true},
		{name: "negative slot", input: "-1." + hash20, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point, err := ParsePoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.origin, point.IsOrigin())
			if !tt.origin {
				assert.Equal(t, tt.slot, point.Slot)
				assert.Equal(t, tt.input, point.String())
			}
		})
	}
}

func TestPointOrdering(t *testing.T) {
	p20, err := ParsePoint("20." + hash20)
	require.NoError(t, err)
	p30, err := ParsePoint("30." + hash20)
	require.NoError(t, err)

	assert.True(t, Origin.Before(p20))
	assert.True(t, p20.Before(p30))
	assert.False(t, p30.Before(p20))
	assert.False(t, p20.Before(p20))
	assert.False(t, Origin.Before(Origin))
}

func TestParseOutputReference(t *testing.T) {
	txID := strings.Repeat("ab", 32)

	ref, err := ParseOutputReference("3@" + txID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), ref.OutputIndex)
	assert.Equal(t, "3@"+txID, ref.String())

	_, err = ParseOutputReference("@" + txID)
	assert.Error(t, err)
	_, err = ParseOutputReference("3@")
	assert.Error(t, err)
	_, err = ParseOutputReference("x@" + txID)
	assert.Error(t, err)
	_, err = ParseOutputReference("3@" + txID[:10])
	assert.Error(t, err)
}
