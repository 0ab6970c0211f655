/*
Package metrics exposes the Prometheus registry over HTTP and provides the
timing helper used around request handling. The collectors themselves are
declared next to the state they observe, in package health.
*/
package metrics
