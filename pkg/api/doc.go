/*
Package api serves kupo's HTTP interface: reads over the materialized index
(matches, checkpoints, datums, scripts, metadata, patterns, health) and the
two mutations (deleting matches, guarded by pattern overlap; adding or
removing patterns, where adding a pattern drives a forced rollback through
the chain consumer).

Every read handler borrows a short-lived database connection under the
arbitration discipline and runs a deferred transaction; collection
responses are streamed as newline-delimited JSON so result sets of any size
flow without materializing in memory. Every response carries
X-Most-Recent-Checkpoint, and a tracer middleware logs {method, path,
status} with a request id and feeds the Prometheus request counters.
*/
package api
