package database

import (
	"fmt"

	"github.com/cuemby/kupo/pkg/chain"
)

// RollBackTo retracts every effect of blocks after the target point:
// inputs created after it disappear, spends recorded after it are cleared,
// and newer checkpoints are dropped. It returns the new tip, which is the
// newest surviving checkpoint (or the origin on a fully unwound store).
//
// The caller is responsible for having validated the target (known
// checkpoint, origin, or an accepted optimistic point within the horizon)
// and for running inside the long-lived writer's transaction.
func (t *Tx) RollBackTo(point chain.Point) (chain.Point, error) {
	slot := point.Slot
	if point.IsOrigin() {
		slot = 0
	}

	if _, err := t.exec(`DELETE FROM policies WHERE output_reference IN
		(SELECT output_reference FROM inputs WHERE created_at_slot_no > ?)`, slot); err != nil {
		return chain.Point{}, fmt.Errorf("failed to roll back policies: %w", err)
	}
	if _, err := t.exec(`DELETE FROM inputs WHERE created_at_slot_no > ?`, slot); err != nil {
		return chain.Point{}, fmt.Errorf("failed to roll back inputs: %w", err)
	}
	if _, err := t.exec(`UPDATE inputs
		SET spent_at_slot_no = NULL, spent_at_header_hash = NULL, spent_at_transaction_id = NULL
		WHERE spent_at_slot_no > ?`, slot); err != nil {
		return chain.Point{}, fmt.Errorf("failed to unspend inputs: %w", err)
	}

	if point.IsOrigin() {
		if _, err := t.exec(`DELETE FROM checkpoints`); err != nil {
			return chain.Point{}, fmt.Errorf("failed to roll back checkpoints: %w", err)
		}
		return chain.Origin, nil
	}

	if _, err := t.exec(`DELETE FROM checkpoints WHERE slot_no > ?`, slot); err != nil {
		return chain.Point{}, fmt.Errorf("failed to roll back checkpoints: %w", err)
	}

	// An optimistic target inside the horizon may not be a known
	// checkpoint yet; persist it so the follower can resume from it.
	if err := t.InsertCheckpoint(point); err != nil {
		return chain.Point{}, err
	}

	newest, err := t.MostRecentCheckpoint()
	if err != nil {
		return chain.Point{}, err
	}
	if newest == nil {
		return chain.Origin, nil
	}
	return newest.Point()
}
