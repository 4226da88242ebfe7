// Package connection implements the realtime connection core.
//
// The Manager owns exactly one logical connection and:
//   - tracks connection state through a five-state machine
//   - schedules reconnection with quadratic backoff and an optional
//     attempt cap and delay ceiling
//   - classifies inbound frames into control-plane errors and data
//     events, handing data to the event queue
//   - sweeps channel subscription bookkeeping on disconnect so the
//     registry resubscribes after reconnect
//
// The Client is the underlying socket transport: dialing, framing,
// keepalive pings and stale-connection detection.
package connection
