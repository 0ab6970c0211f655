// Package pattern implements the matchers that decide which transaction
// outputs kupo materializes, and the process-wide registry holding the set of
// active matchers.
//
// A pattern is one of a closed set of variants, each with a canonical text
// form:
//
//	*                          any output
//	<addr…>                    exact address (bech32 or hex)
//	<payment hex>/*            by payment credential
//	*/<delegation hex>         by delegation credential
//	<payment hex>/<deleg hex>  by both credentials
//	<policy hex>.*             any asset of a minting policy
//	<policy hex>.<name hex>    a single asset
//	*@<tx id>                  every output of a transaction
//	<ix>@<tx id>               a single output reference
//
// Patterns answer three questions: whether an output matches (driving ingest
// filtering), whether one pattern includes another (driving GET /patterns/{p}
// lookups), and whether two patterns overlap (guarding DELETE /matches).
// Overlap is the symmetric closure of inclusion: address specializations are
// absorbed by credential specializations, assets by their policy, output
// references by their transaction.
package pattern
