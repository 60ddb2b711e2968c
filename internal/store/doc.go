// Package store holds users and medications behind the RecordStore contract.
//
// This package provides the contract, the default seed rows, and the SQLite
// backing. Other backings live in subpackages:
//   - slotstore: in-process slices serialized as JSON into key-value slots
//   - pgstore: PostgreSQL via a pgx connection pool
//
// # Contract
//
//   - Records are append-only; the only mutation is the taken/lastTaken pair
//   - Listings preserve insertion order
//   - Unknown identifiers yield record.ErrCodeNotFound, never a silent no-op
//   - CreateUser performs no duplicate check of its own; callers pre-check.
//     Relational backings additionally enforce UNIQUE(email, role)
//
// # SQLite Configuration
//
//   - One connection held for the life of the process
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000
//   - foreign_keys=ON: medications must reference an existing user
//   - Timestamps stored as RFC 3339 TEXT in UTC; taken stored as 0/1
package store
