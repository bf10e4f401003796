// Package store persists pipeline state between CLI invocations.
//
// Two layers live here:
//
//   - Registry: a SQLite database of runs. "The most recent run for this
//     shell" is an explicit pointer record written by the driver and
//     keyed by the invoking shell, never derived from filesystem
//     mtimes.
//   - RunDir: the file-backed record store for one run. Each stage's
//     records are YAML files whose names encode the full ancestor
//     lineage. Records are immutable: a stage never rewrites an
//     existing record unless explicitly forced, which is what makes
//     reruns idempotent.
//
// One run's records are exclusively owned by the single invocation
// processing them; concurrent invocations against the same run are not
// coordinated.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
