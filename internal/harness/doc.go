// Package harness runs YAML conformance scenarios against the lifecycle
// manager.
//
// # Scenario Format
//
//	name: supersede_open_ended
//	description: "A new open-ended price supersedes the current one"
//	start: "2024-03-01T09:00:00Z"
//	tolerance: 5s                # optional, manager default otherwise
//	models:                      # optional, relative to the scenario file
//	  - ../models/price.cue
//	steps:
//	  - op: create
//	    ref: first
//	    group: { model: price, parent_id: p1 }
//	    start: now
//	    payload: { cents: 100 }
//	  - op: advance
//	    by: 1h
//	  - op: update
//	    ref: first
//	    changes: { valid_end: now+1h }
//	    expect: UPDATE_NOT_ALLOWED
//	assertions:
//	  - type: valid
//	    group: { model: price, parent_id: p1 }
//	    refs: [first]
//	  - type: record
//	    ref: first
//	    expect: { valid_start: start, open_ended: true }
//
// # Operations
//
//   - create: insert a candidate; ref names the new record
//   - update: request changes on ref
//   - delete: request a delete of ref; expect names the resolution
//   - enable_updates, disable_updates: toggle unrestricted updates on ref
//   - advance: move the clock forward by a duration
//
// A step's expect is either a lifecycle error code, "ok", or for deletes a
// resolution (removed, ended, unchanged). A step without expect must
// succeed.
//
// # Instants
//
// Times are written as "now", "start", either followed by a signed Go
// duration ("now+1h", "start-3s"), or as RFC 3339 timestamps. "now" is the
// scenario clock when the step runs; "start" is the scenario start.
//
// # Assertion Types
//
//   - valid, invalid: the records of group valid (or not) at the given
//     instant are exactly refs
//   - record: ref exists (or not) with the expected fields
//   - count: group holds exactly count records
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite store, a fixed clock and
// sequential record ids, so traces and final states compare byte for byte
// against golden files.
package harness
