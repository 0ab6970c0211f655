package chain

import (
	"golang.org/x/crypto/blake2b"
)

// scriptTag returns the prefix byte hashed ahead of the script body, per
// the ledger's script hashing scheme.
func scriptTag(language string) byte {
	switch language {
	case "plutus:v1":
		return 1
	case "plutus:v2":
		return 2
	case "plutus:v3":
		return 3
	default: // native
		return 0
	}
}

// HashScript computes the 28-byte hash identifying a script: blake2b-224
// over the language tag followed by the script body.
func HashScript(script Script) ScriptHash {
	digest, _ := blake2b.New(28, nil)
	digest.Write([]byte{scriptTag(script.Language)})
	digest.Write(script.Bytes)

	var hash ScriptHash
	copy(hash[:], digest.Sum(nil))
	return hash
}

// HashDatum computes the 32-byte blake2b-256 hash of a datum's bytes.
func HashDatum(data []byte) DatumHash {
	return DatumHash(blake2b.Sum256(data))
}
