// Package writer implements the batch event writer.
//
// The writer drains the event queue, transforms events into rows and
// inserts them into PostgreSQL in batches. Storage is append-only:
// never update, only insert.
package writer
