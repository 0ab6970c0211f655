package producer

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockJSON = `{
	"id": "%s",
	"slot": 1234,
	"height": 99,
	"transactions": [{
		"id": "%s",
		"inputs": [{"transaction": {"id": "%s"}, "index": 1}],
		"outputs": [{
			"address": "61%s",
			"value": {"ada": {"lovelace": 2000000}, "%s": {"6b75706f": 1}},
			"datum": "d87980"
		}],
		"metadata": {"674": {"msg": "hello"}}
	}]
}`

func TestUnmarshalBlock(t *testing.T) {
	blockID := strings.Repeat("11", 32)
	txID := strings.Repeat("22", 32)
	spentID := strings.Repeat("33", 32)
	payment := strings.Repeat("aa", 28)
	policy := strings.Repeat("cc", 28)

	raw := fmt.Sprintf(testBlockJSON, blockID, txID, spentID, payment, policy)

	block, err := unmarshalBlock(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, uint64(1234), block.Point.Slot)
	assert.Equal(t, uint64(99), block.Height)
	require.Len(t, block.Transactions, 1)

	tx := block.Transactions[0]
	assert.Equal(t, txID, tx.ID.String())
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, "1@"+spentID, tx.Inputs[0].String())
	assert.NotEmpty(t, tx.Metadata)

	require.Len(t, tx.Outputs, 1)
	out := tx.Outputs[0]
	require.NotNil(t, out.Address.Payment)
	assert.Equal(t, payment, out.Address.Payment.String())
	assert.NotEmpty(t, out.Value, "the value must be re-encoded as CBOR")

	require.Len(t, out.Assets, 1)
	assert.Equal(t, policy, out.Assets[0].PolicyID.String())
	assert.Equal(t, []byte("kupo"), out.Assets[0].AssetName)

	// The inline datum is hashed so it can be stored and served by hash.
	require.NotNil(t, out.DatumHash)
	assert.Equal(t, []byte{0xd8, 0x79, 0x80}, out.Datum)
}

func TestUnmarshalBlockRejectsGarbage(t *testing.T) {
	_, err := unmarshalBlock(json.RawMessage(`{"id": "tooshort", "slot": 1}`))
	assert.Error(t, err)

	_, err = unmarshalBlock(json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestUnmarshalPointForms(t *testing.T) {
	point, err := unmarshalPoint(json.RawMessage(`"origin"`))
	require.NoError(t, err)
	assert.True(t, point.IsOrigin())

	hash := strings.Repeat("ab", 32)
	point, err = unmarshalPoint(json.RawMessage(fmt.Sprintf(`{"slot": 7, "id": %q}`, hash)))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), point.Slot)

	_, err = unmarshalPoint(json.RawMessage(`"elsewhere"`))
	assert.Error(t, err)
}
