/*
Package chain defines the core data model shared by every component of kupo:
points on the chain, output references, materialized inputs, binary
artifacts (datums and scripts), and the block shape consumed from the
producer.

# Points

A point identifies a position on the chain, either the distinguished origin
or a (slot, header hash) pair. Points are totally ordered by slot; on a
single chain two distinct blocks never share a slot. The canonical text form
is "origin" or "<slot>.<64-hex-digit hash>", and that form is used on the
command line, in HTTP bodies, and in JSON responses alike.

# Inputs

An input is a transaction output that matched a pattern at ingest time,
together with its creation and (once spent) spending provenance. Inputs are
keyed by their output reference "<output index>@<tx id>" and are mutated at
most once, when the consumer observes the spending transaction.

# Addresses

Addresses appear as bech32 text (addr1…, addr_test1…, stake1…) or as raw
hex. Both forms decode to a header byte plus whichever payment and
delegation credentials the address type carries; pattern matching against
credentials relies on that decomposition.
*/
package chain
