package database

import (
	"database/sql"
	"fmt"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/pattern"
)

// InputRow is the stored form of a materialized output. Hashes and
// credentials are hex text, matching the wire encoding.
type InputRow struct {
	OutputReference      string
	TransactionID        string
	OutputIndex          uint32
	Address              string
	PaymentCredential    *string
	DelegationCredential *string
	Value                []byte
	DatumHash            *string
	ScriptHash           *string
	CreatedAtSlot        uint64
	CreatedAtHeaderHash  string
	SpentAtSlot          *uint64
	SpentAtHeaderHash    *string
	SpentAtTransactionID *string

	// Assets is populated on insert to feed the policies join table; it
	// is not read back by match queries.
	Assets []chain.Asset
}

// NewInputRow builds the stored form of an output created at point.
func NewInputRow(ref chain.OutputReference, out chain.TransactionOutput, createdAt chain.Point) InputRow {
	row := InputRow{
		OutputReference:     ref.String(),
		TransactionID:       ref.TransactionID.String(),
		OutputIndex:         ref.OutputIndex,
		Address:             out.Address.Text,
		Value:               out.Value,
		CreatedAtSlot:       createdAt.Slot,
		CreatedAtHeaderHash: fmt.Sprintf("%x", createdAt.HeaderHash),
		Assets:              out.Assets,
	}
	if out.Address.Payment != nil {
		s := out.Address.Payment.String()
		row.PaymentCredential = &s
	}
	if out.Address.Delegation != nil {
		s := out.Address.Delegation.String()
		row.DelegationCredential = &s
	}
	if out.DatumHash != nil {
		s := out.DatumHash.String()
		row.DatumHash = &s
	}
	if out.ScriptRef != nil {
		s := out.ScriptRef.String()
		row.ScriptHash = &s
	}
	return row
}

// InsertInput persists a materialized output and its asset join rows.
// Re-inserting the same reference is idempotent: replays after a partial
// resync must not duplicate rows.
func (t *Tx) InsertInput(row InputRow) error {
	_, err := t.exec(`INSERT OR REPLACE INTO inputs
		(output_reference, transaction_id, output_index, address,
		 payment_credential, delegation_credential, value, datum_hash, script_hash,
		 created_at_slot_no, created_at_header_hash,
		 spent_at_slot_no, spent_at_header_hash, spent_at_transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL)`,
		row.OutputReference, row.TransactionID, row.OutputIndex, row.Address,
		row.PaymentCredential, row.DelegationCredential, row.Value,
		row.DatumHash, row.ScriptHash,
		row.CreatedAtSlot, row.CreatedAtHeaderHash)
	if err != nil {
		return fmt.Errorf("failed to insert input %s: %w", row.OutputReference, err)
	}

	for _, asset := range row.Assets {
		_, err := t.exec(`INSERT OR IGNORE INTO policies (output_reference, policy_id, asset_name)
			VALUES (?, ?, ?)`,
			row.OutputReference, asset.PolicyID.String(), encodeAssetName(asset.AssetName))
		if err != nil {
			return fmt.Errorf("failed to insert policy row for %s: %w", row.OutputReference, err)
		}
	}
	return nil
}

// SpendInput marks a stored input as spent at the given point. Unknown
// references are ignored: the spent output never matched a pattern.
func (t *Tx) SpendInput(ref chain.OutputReference, at chain.Point, spendingTx chain.TransactionID) error {
	_, err := t.exec(`UPDATE inputs
		SET spent_at_slot_no = ?, spent_at_header_hash = ?, spent_at_transaction_id = ?
		WHERE output_reference = ?`,
		at.Slot, fmt.Sprintf("%x", at.HeaderHash), spendingTx.String(), ref.String())
	if err != nil {
		return fmt.Errorf("failed to mark %s as spent: %w", ref, err)
	}
	return nil
}

// ForEachMatch streams every stored input selected by the pattern, status
// flag and sort direction, invoking yield per row. The pattern's SQL
// pre-filter narrows the scan; asset-level checks run in process.
func (t *Tx) ForEachMatch(p pattern.Pattern, status StatusFlag, sort SortDirection, yield func(InputRow) error) error {
	sel := translate(p)
	query, args := sel.apply(status, sort)

	rows, err := t.query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanInputRow(rows)
		if err != nil {
			return fmt.Errorf("unexpected row: %w", err)
		}
		if sel.postFilter != nil {
			ok, err := t.holdsAsset(row.OutputReference, sel.postFilter)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AssetRow is one (policy, asset name) entry of a stored input's value.
type AssetRow struct {
	PolicyID  string
	AssetName string
}

// AssetsOf returns the asset entries recorded for an output reference.
func (t *Tx) AssetsOf(outputReference string) ([]AssetRow, error) {
	rows, err := t.query(`SELECT policy_id, asset_name FROM policies WHERE output_reference = ?`,
		outputReference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []AssetRow
	for rows.Next() {
		var a AssetRow
		if err := rows.Scan(&a.PolicyID, &a.AssetName); err != nil {
			return nil, fmt.Errorf("unexpected row: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (t *Tx) holdsAsset(outputReference string, f *assetFilter) (bool, error) {
	var one int
	err := t.queryRow(`SELECT 1 FROM policies
		WHERE output_reference = ? AND policy_id = ? AND asset_name = ?`,
		outputReference, f.policyID, f.assetName).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// DeleteMatches removes every input selected by the pattern, along with its
// asset join rows, and returns the number of inputs removed. Binary data
// and scripts orphaned by the deletion are left to the garbage collector.
func (t *Tx) DeleteMatches(p pattern.Pattern) (int64, error) {
	sel := translate(p)

	// The asset post-filter needs per-row inspection; collect the doomed
	// references first, then delete by key.
	var doomed []string
	if err := t.ForEachMatch(p, StatusAll, SortDesc, func(row InputRow) error {
		doomed = append(doomed, row.OutputReference)
		return nil
	}); err != nil {
		return 0, err
	}
	if sel.postFilter == nil && len(doomed) > 64 {
		// No in-process filtering involved: one statement does it.
		where := sel.where
		if _, err := t.exec("DELETE FROM policies WHERE output_reference IN (SELECT output_reference FROM inputs WHERE "+where+")", sel.args...); err != nil {
			return 0, err
		}
		res, err := t.exec("DELETE FROM inputs WHERE "+where, sel.args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	for _, ref := range doomed {
		if _, err := t.exec("DELETE FROM policies WHERE output_reference = ?", ref); err != nil {
			return 0, err
		}
		if _, err := t.exec("DELETE FROM inputs WHERE output_reference = ?", ref); err != nil {
			return 0, err
		}
	}
	return int64(len(doomed)), nil
}

func scanInputRow(rows *sql.Rows) (InputRow, error) {
	var row InputRow
	var datumHash, scriptHash sql.NullString
	var spentSlot sql.NullInt64
	var spentHash, spentTx sql.NullString

	err := rows.Scan(&row.OutputReference, &row.TransactionID, &row.OutputIndex, &row.Address,
		&row.Value, &datumHash, &scriptHash,
		&row.CreatedAtSlot, &row.CreatedAtHeaderHash,
		&spentSlot, &spentHash, &spentTx)
	if err != nil {
		return row, err
	}

	if datumHash.Valid {
		row.DatumHash = &datumHash.String
	}
	if scriptHash.Valid {
		row.ScriptHash = &scriptHash.String
	}
	if spentSlot.Valid {
		slot := uint64(spentSlot.Int64)
		row.SpentAtSlot = &slot
	}
	if spentHash.Valid {
		row.SpentAtHeaderHash = &spentHash.String
	}
	if spentTx.Valid {
		row.SpentAtTransactionID = &spentTx.String
	}
	return row, nil
}
