package database

import (
	"context"
	"fmt"
)

// migrations is the ordered list of forward schema migrations. The applied
// count is tracked in PRAGMA user_version; downgrades are unsupported.
var migrations = [][]string{
	// v1: core schema. The inputs primary key and the checkpoints slot
	// key are essential and never deferred.
	{
		`CREATE TABLE IF NOT EXISTS inputs (
			output_reference TEXT NOT NULL PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			output_index INTEGER NOT NULL,
			address TEXT NOT NULL,
			payment_credential TEXT,
			delegation_credential TEXT,
			value BLOB NOT NULL,
			datum_hash TEXT,
			script_hash TEXT,
			created_at_slot_no INTEGER NOT NULL,
			created_at_header_hash TEXT NOT NULL,
			spent_at_slot_no INTEGER,
			spent_at_header_hash TEXT,
			spent_at_transaction_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			slot_no INTEGER NOT NULL PRIMARY KEY,
			header_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			pattern TEXT NOT NULL PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS binary_data (
			binary_data_hash TEXT NOT NULL PRIMARY KEY,
			data BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scripts (
			script_hash TEXT NOT NULL PRIMARY KEY,
			language TEXT NOT NULL,
			script BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS policies (
			output_reference TEXT NOT NULL,
			policy_id TEXT NOT NULL,
			asset_name TEXT NOT NULL,
			PRIMARY KEY (output_reference, policy_id, asset_name)
		)`,
	},
}

// secondaryIndexes speed up reads but slow down the initial sync; they are
// skipped when the database is opened with DeferIndexes and installed on
// the next regular start.
var secondaryIndexes = []string{
	`CREATE INDEX IF NOT EXISTS inputs_by_address ON inputs (address, spent_at_slot_no)`,
	`CREATE INDEX IF NOT EXISTS inputs_by_payment_credential ON inputs (payment_credential, spent_at_slot_no)`,
	`CREATE INDEX IF NOT EXISTS inputs_by_delegation_credential ON inputs (delegation_credential, spent_at_slot_no)`,
	`CREATE INDEX IF NOT EXISTS inputs_by_transaction_id ON inputs (transaction_id)`,
	`CREATE INDEX IF NOT EXISTS inputs_by_created_at ON inputs (created_at_slot_no)`,
	`CREATE INDEX IF NOT EXISTS inputs_by_spent_at ON inputs (spent_at_slot_no)`,
	`CREATE INDEX IF NOT EXISTS policies_by_policy_id ON policies (policy_id)`,
}

// migrate applies pending forward migrations inside a single IMMEDIATE
// transaction, then installs secondary indexes unless deferred.
func (d *DB) migrate(ctx context.Context, deferIndexes bool) error {
	conn, release, err := d.acquireConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("bad migration: database version %d is ahead of this binary (%d); downgrades are unsupported",
			version, len(migrations))
	}

	if version < len(migrations) {
		d.logger.Info().
			Int("from", version).
			Int("to", len(migrations)).
			Msg("Applying database migrations")

		err := runTransaction(ctx, conn, true, func(tx *Tx) error {
			for _, step := range migrations[version:] {
				for _, stmt := range step {
					if _, err := tx.exec(stmt); err != nil {
						return fmt.Errorf("bad migration: %w", err)
					}
				}
			}
			// PRAGMA cannot be parameterized; the value is an
			// integer under our control.
			_, err := tx.exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations)))
			return err
		})
		if err != nil {
			return err
		}
	}

	if deferIndexes {
		d.logger.Info().Msg("Secondary index creation deferred until next start")
		return nil
	}
	for _, stmt := range secondaryIndexes {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to install index: %w", err)
		}
	}
	return nil
}
