// Package channel implements the channel registry: per-channel
// bookkeeping of which subscriptions are currently active on the live
// connection. The connection manager sweeps every record to inactive on
// disconnect and resubscribes after the handshake completes.
package channel
