/*
Package producer abstracts the upstream block source. The chain consumer
only speaks to the Producer interface: negotiate an intersection, then pull
roll-forward and roll-backward events one at a time; /metadata additionally
fetches single blocks by point.

The shipped implementation bridges to an Ogmios server over a JSON-RPC
WebSocket (findIntersection / nextBlock / queryBlock). Connection loss is
handled with capped exponential backoff and surfaces in health as a
disconnected status; repeated read timeouts are treated as disconnection
and trigger a fresh intersection.
*/
package producer
