package database

import (
	"database/sql"
	"fmt"

	"github.com/cuemby/kupo/pkg/chain"
)

// Checkpoint is a stored (slot, header hash) anchor.
type Checkpoint struct {
	SlotNo     uint64
	HeaderHash string
}

// Point converts the stored form back to a chain point.
func (c Checkpoint) Point() (chain.Point, error) {
	hash, err := chain.ParseHeaderHash(c.HeaderHash)
	if err != nil {
		return chain.Point{}, fmt.Errorf("unexpected row: checkpoint %d carries %v", c.SlotNo, err)
	}
	return chain.NewPoint(c.SlotNo, hash), nil
}

// InsertCheckpoint records a block boundary in the ring. It runs inside the
// same transaction as the block's inputs, so readers never observe one
// without the other.
func (t *Tx) InsertCheckpoint(point chain.Point) error {
	if point.IsOrigin() {
		return nil
	}
	_, err := t.exec(`INSERT OR REPLACE INTO checkpoints (slot_no, header_hash) VALUES (?, ?)`,
		point.Slot, fmt.Sprintf("%x", point.HeaderHash))
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint at slot %d: %w", point.Slot, err)
	}
	return nil
}

// ThinCheckpoints enforces the ring's coverage policy around the given tip:
// every checkpoint within longestRollback slots survives; beyond the
// horizon, the nearest checkpoint and one per power-of-two slot distance
// are retained so resumption stays cheap at any age. Everything else goes.
func (t *Tx) ThinCheckpoints(tip uint64, longestRollback uint64) error {
	slots, err := t.checkpointSlots()
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}

	var boundary uint64
	if tip > longestRollback {
		boundary = tip - longestRollback
	}

	keep := make(map[uint64]bool)
	// The oldest checkpoint always survives: it anchors resumption no
	// matter how far the tip advances.
	keep[slots[len(slots)-1]] = true

	distance := longestRollback
	if distance == 0 {
		distance = 1
	}
	for ; distance < tip; distance *= 2 {
		target := tip - distance
		// Newest checkpoint at or below the target distance.
		for _, slot := range slots {
			if slot <= target {
				keep[slot] = true
				break
			}
		}
	}

	// Collect the doomed slots below the horizon boundary.
	var doomed []uint64
	for _, slot := range slots {
		if slot < boundary && !keep[slot] {
			doomed = append(doomed, slot)
		}
	}
	for _, slot := range doomed {
		if _, err := t.exec(`DELETE FROM checkpoints WHERE slot_no = ?`, slot); err != nil {
			return fmt.Errorf("failed to thin checkpoint at slot %d: %w", slot, err)
		}
	}
	return nil
}

// checkpointSlots returns all stored slots, newest first.
func (t *Tx) checkpointSlots() ([]uint64, error) {
	rows, err := t.query(`SELECT slot_no FROM checkpoints ORDER BY slot_no DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []uint64
	for rows.Next() {
		var slot uint64
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("unexpected row: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ForEachCheckpoint streams stored checkpoints in descending slot order.
func (t *Tx) ForEachCheckpoint(yield func(Checkpoint) error) error {
	rows, err := t.query(`SELECT slot_no, header_hash FROM checkpoints ORDER BY slot_no DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.SlotNo, &c.HeaderHash); err != nil {
			return fmt.Errorf("unexpected row: %w", err)
		}
		if err := yield(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CheckpointAt returns the checkpoint exactly at the slot, or nil.
func (t *Tx) CheckpointAt(slot uint64) (*Checkpoint, error) {
	var c Checkpoint
	err := t.queryRow(`SELECT slot_no, header_hash FROM checkpoints WHERE slot_no = ?`, slot).
		Scan(&c.SlotNo, &c.HeaderHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CheckpointBefore returns the closest checkpoint at or below the slot, or
// nil when the slot predates every stored checkpoint.
func (t *Tx) CheckpointBefore(slot uint64) (*Checkpoint, error) {
	var c Checkpoint
	err := t.queryRow(`SELECT slot_no, header_hash FROM checkpoints
		WHERE slot_no <= ? ORDER BY slot_no DESC LIMIT 1`, slot).
		Scan(&c.SlotNo, &c.HeaderHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MostRecentCheckpoint returns the newest checkpoint, or nil on an empty
// database.
func (t *Tx) MostRecentCheckpoint() (*Checkpoint, error) {
	var c Checkpoint
	err := t.queryRow(`SELECT slot_no, header_hash FROM checkpoints
		ORDER BY slot_no DESC LIMIT 1`).
		Scan(&c.SlotNo, &c.HeaderHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
