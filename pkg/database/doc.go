/*
Package database implements kupo's persistence layer on SQLite.

# Schema

Six domain tables plus a version counter:

	┌──────────────────── KUPO.SQLITE3 ────────────────────────┐
	│                                                           │
	│  inputs        materialized outputs, keyed by reference   │
	│  checkpoints   (slot_no, header_hash) resume/rollback ring│
	│  patterns      persisted copy of the active pattern set   │
	│  binary_data   datum hash → CBOR bytes                    │
	│  scripts       script hash → language + bytes             │
	│  policies      (output_reference, policy_id, asset_name)  │
	│                join table for asset lookups               │
	│                                                           │
	│  PRAGMA user_version tracks applied migrations            │
	└───────────────────────────────────────────────────────────┘

Essential indexes (inputs primary key, checkpoints slot) are always
installed; secondary indexes on address, payment credential, policy and slot
may be deferred at first start for faster initial synchronization.

# Concurrency

Exactly one long-lived connection (the chain consumer's writer, also lent to
the garbage collector) and many short-lived connections (HTTP handlers)
share the file. Arbitration biases liveness toward the short-lived side:
readers only wait for an in-flight writer transaction, while the writer
waits for the reader count to drain to zero. Short-lived transactions may
themselves write (pattern mutations); they run IMMEDIATE and retry on
SQLITE_BUSY with a fixed 100 ms backoff, without bound.

In-memory mode keeps exactly one connection alive in a single-slot mailbox;
whoever needs the database borrows the connection and returns it.
*/
package database
