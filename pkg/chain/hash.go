package chain

import (
	"encoding/hex"
	"fmt"
)

// DatumHash is the 32-byte blake2b-256 digest identifying a datum.
type DatumHash [32]byte

// ScriptHash is the 28-byte blake2b-224 digest identifying a script.
type ScriptHash [28]byte

// Credential is a 28-byte payment or delegation key/script hash.
type Credential [28]byte

// PolicyID is the 28-byte minting policy hash of a native asset.
type PolicyID [28]byte

// TransactionID is the 32-byte hash identifying a transaction body.
type TransactionID [32]byte

func (h DatumHash) String() string     { return hex.EncodeToString(h[:]) }
func (h ScriptHash) String() string    { return hex.EncodeToString(h[:]) }
func (c Credential) String() string    { return hex.EncodeToString(c[:]) }
func (p PolicyID) String() string      { return hex.EncodeToString(p[:]) }
func (t TransactionID) String() string { return hex.EncodeToString(t[:]) }

// ParseDatumHash decodes a datum hash from its 64-character hex form.
func ParseDatumHash(s string) (DatumHash, error) {
	var h DatumHash
	if err := decodeFixedHex(s, h[:], "datum hash"); err != nil {
		return h, err
	}
	return h, nil
}

// ParseScriptHash decodes a script hash from its 56-character hex form.
func ParseScriptHash(s string) (ScriptHash, error) {
	var h ScriptHash
	if err := decodeFixedHex(s, h[:], "script hash"); err != nil {
		return h, err
	}
	return h, nil
}

// ParseCredential decodes a credential from its 56-character hex form.
func ParseCredential(s string) (Credential, error) {
	var c Credential
	if err := decodeFixedHex(s, c[:], "credential"); err != nil {
		return c, err
	}
	return c, nil
}

// ParsePolicyID decodes a policy id from its 56-character hex form.
func ParsePolicyID(s string) (PolicyID, error) {
	var p PolicyID
	if err := decodeFixedHex(s, p[:], "policy id"); err != nil {
		return p, err
	}
	return p, nil
}

// ParseTransactionID decodes a transaction id from its 64-character hex form.
func ParseTransactionID(s string) (TransactionID, error) {
	var t TransactionID
	if err := decodeFixedHex(s, t[:], "transaction id"); err != nil {
		return t, err
	}
	return t, nil
}

func decodeFixedHex(s string, dst []byte, what string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("malformed %s: not hex-encoded", what)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("malformed %s: expected %d bytes, got %d", what, len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
