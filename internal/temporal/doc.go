// Package temporal implements the valid-time lifecycle manager.
//
// The manager sits between callers and a record store and keeps every
// temporal group (records sharing a model, parent id and optional parent
// type) free of overlapping intervals as records are created, updated and
// deleted.
//
// RULES:
//
// Validation (validate.go):
// A new record may not start earlier than now minus the tolerance window
// (default 5s) and a set ValidEnd must be strictly after ValidStart.
//
// Conflict resolution (conflict.go):
// Before a candidate is inserted, the currently valid sibling is closed at
// the candidate's start and the siblings it supersedes are removed through
// the delete path. An open-ended candidate supersedes every sibling
// scheduled after now; a closed candidate supersedes siblings whose
// interval intersects its own, except the current sibling being closed.
//
// Mutation restriction (restrict.go):
// After creation only ValidEnd may change, only while the record is open or
// still in the future, and never to an instant before now minus tolerance.
// Records flagged UpdatesEnabled bypass the restriction.
//
// Delete resolution (resolve.go):
// A record that has not started yet is removed. A record that is valid is
// soft-ended at now. A record that already ended is left untouched.
//
// CONCURRENCY:
//
// The manager holds no locks. Every mutating operation runs inside one
// Store.RunAtomically unit; callers must serialise writes per group (the
// SQLite store does so with its single writer connection). Reads are pure
// and may run concurrently.
//
// Validity is computed on read from the injected Clock. Nothing in this
// package runs in the background.
package temporal
