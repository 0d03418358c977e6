// Package store provides SQLite-backed durable storage for temporal records.
//
// Store implements temporal.Store and temporal.ValidityFinder over a single
// table, temporal_records, holding every record of every group.
//
// # Storage Rules
//
// Timestamps:
//   - Stored as fixed-width UTC TEXT (querysql.TimeLayout)
//   - Lexical order equals instant order, so range predicates run in SQL
//
// Deterministic Query Results:
//   - All reads are ordered by valid_start ASC, id ASC COLLATE BINARY
//   - Queries are built as queryir and compiled by querysql, never by hand
//
// Payloads:
//   - Stored as RFC 8785 canonical JSON (ir.MarshalCanonical)
//
// # Atomic Units
//
// RunAtomically maps to one write transaction. Transactions start with
// BEGIN IMMEDIATE (_txlock=immediate) so the write lock is taken up front,
// and a unit that fails with SQLITE_BUSY or SQLITE_LOCKED is retried as a
// whole with exponential backoff. Any other error rolls the unit back and
// is returned as is.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite has one writer; the pool never opens more
package store
