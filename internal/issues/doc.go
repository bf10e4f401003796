// Package issues reconciles artifact jobs against a tracker.
//
// An issue-config document declares actions: tracker issues to create
// or adopt for each job, optionally carrying the recipe that schedules
// tests under the issue. Reconciliation is a per-action state machine:
//
//	unresolved -> found-open | found-closed | created | mapped
//	found-closed -> closed-obsolete -> created   (on_respin: close)
//	found-closed -> mapped                       (on_respin: keep)
//
// Identity is carried by a marker stamped into the issue description.
// The marker binds the action to its document and job lineage, so a
// rerun finds its own issues instead of creating duplicates; a second
// run with unchanged input maps every action and creates nothing.
//
// Tracker failures are per-action: one action's failure is recorded
// and siblings continue. Only structural problems (malformed document,
// unresolvable parent chain) abort the whole stage.
package issues
