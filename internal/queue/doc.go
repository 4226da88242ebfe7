// Package queue implements the event-consumption queue. Classified
// data events from the connection manager are buffered here and
// consumed by downstream writers.
package queue
