package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDatum(t *testing.T) {
	data := []byte{0xd8, 0x79, 0x80}

	first := HashDatum(data)
	second := HashDatum(data)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, HashDatum([]byte{0xd8, 0x79, 0x81}))
}

func TestHashScriptLanguageTag(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03}

	// The same body under different languages hashes differently.
	v1 := HashScript(Script{Language: "plutus:v1", Bytes: body})
	v2 := HashScript(Script{Language: "plutus:v2", Bytes: body})
	native := HashScript(Script{Language: "native", Bytes: body})

	assert.NotEqual(t, v1, v2)
	assert.NotEqual(t, v1, native)
	assert.Equal(t, v1, HashScript(Script{Language: "plutus:v1", Bytes: body}))
}
