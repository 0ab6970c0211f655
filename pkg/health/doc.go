/*
Package health aggregates the observable state of the indexer: producer
connection status, the most recent checkpoint, the producer's view of the
node tip, and the effective configuration. The state is updated on every
block ingest and every HTTP request boundary, and is exported both as JSON
(GET /health with Accept: application/json) and as Prometheus gauges
(kupo_most_recent_checkpoint, kupo_most_recent_node_tip,
kupo_connection_status).
*/
package health
