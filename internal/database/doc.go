// Package database provides connection pool management for PostgreSQL.
//
// The gatherer keeps a single append-only events table; everything
// else lives in memory.
package database
