package database

import (
	"database/sql"
	"fmt"

	"github.com/cuemby/kupo/pkg/chain"
)

// InsertBinaryData stores a datum under its hash. Datums are content
// addressed, so replacing an existing row is harmless.
func (t *Tx) InsertBinaryData(hash chain.DatumHash, data []byte) error {
	_, err := t.exec(`INSERT OR REPLACE INTO binary_data (binary_data_hash, data) VALUES (?, ?)`,
		hash.String(), data)
	if err != nil {
		return fmt.Errorf("failed to insert binary data %s: %w", hash, err)
	}
	return nil
}

// BinaryData returns the datum bytes stored under the hash, or nil.
func (t *Tx) BinaryData(hash chain.DatumHash) ([]byte, error) {
	var data []byte
	err := t.queryRow(`SELECT data FROM binary_data WHERE binary_data_hash = ?`, hash.String()).
		Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// InsertScript stores a script under its hash.
func (t *Tx) InsertScript(hash chain.ScriptHash, script chain.Script) error {
	_, err := t.exec(`INSERT OR REPLACE INTO scripts (script_hash, language, script) VALUES (?, ?, ?)`,
		hash.String(), script.Language, script.Bytes)
	if err != nil {
		return fmt.Errorf("failed to insert script %s: %w", hash, err)
	}
	return nil
}

// Script returns the script stored under the hash, or nil.
func (t *Tx) Script(hash chain.ScriptHash) (*chain.Script, error) {
	var script chain.Script
	err := t.queryRow(`SELECT language, script FROM scripts WHERE script_hash = ?`, hash.String()).
		Scan(&script.Language, &script.Bytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &script, nil
}
