package database

// PruneSpentInputs deletes inputs whose spending slot has fallen behind the
// rollback horizon relative to the tip, together with their asset join
// rows. A reorganization can no longer resurrect them.
func (t *Tx) PruneSpentInputs(tip uint64, longestRollback uint64) (int64, error) {
	if tip <= longestRollback {
		return 0, nil
	}
	boundary := tip - longestRollback

	if _, err := t.exec(`DELETE FROM policies WHERE output_reference IN
		(SELECT output_reference FROM inputs WHERE spent_at_slot_no IS NOT NULL AND spent_at_slot_no < ?)`,
		boundary); err != nil {
		return 0, err
	}
	res, err := t.exec(`DELETE FROM inputs WHERE spent_at_slot_no IS NOT NULL AND spent_at_slot_no < ?`,
		boundary)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneBinaryData deletes datums no surviving input references.
func (t *Tx) PruneBinaryData() (int64, error) {
	res, err := t.exec(`DELETE FROM binary_data WHERE binary_data_hash NOT IN
		(SELECT datum_hash FROM inputs WHERE datum_hash IS NOT NULL)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneScripts deletes scripts no surviving input references.
func (t *Tx) PruneScripts() (int64, error) {
	res, err := t.exec(`DELETE FROM scripts WHERE script_hash NOT IN
		(SELECT script_hash FROM inputs WHERE script_hash IS NOT NULL)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
