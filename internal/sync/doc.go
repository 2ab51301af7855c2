// Package sync moves complete snapshots of the local store to and from a
// per-user remote row.
//
// # Model
//
// A snapshot is every dataset in the local store, treated as one unit. The
// engine never merges fields across devices: a push overwrites the remote row
// in full and a pull overwrites the local store in full. This is
// last-full-write-wins. When two processes push within the same debounce
// window, the later push is the remote state and the earlier process's
// unique edits are gone from the remote row.
//
// # Operations
//
//   - PushSnapshot: upsert the local snapshot under the current user id
//   - PullSnapshot: replace local data with the remote snapshot, or clear
//     local data when the user has no remote row yet
//   - MergeSnapshot: union list datasets keyed by item id (goals, journal),
//     prefer remote for everything else, then write the result both ways
//
// None of these return errors. Failures are logged, reflected in the engine
// status and reported as false; the next local change schedules another
// push.
//
// # Coalescing
//
// At most one push runs at a time per Engine. A push requested while one is
// in flight marks a single follow-up; the in-flight caller runs that
// follow-up with a fresh snapshot before returning. Requests arriving while
// a follow-up is already marked are folded into it.
//
// # Triggers
//
// Debouncer resets a timer on every Trigger and fires once the window has
// been quiet (DefaultDebounce). AutoSync connects the local store's change
// bus to a Debouncer that calls PushSnapshot.
package sync
