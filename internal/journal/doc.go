// Package journal records scheduler runs in SQLite.
//
// The journal is history only: it is never read back to restore a
// scheduler. It stores:
//   - Runs: one row per scheduler run (UUIDv7 id, frequency, workload digest)
//   - Events: the lifecycle events published during the run
//   - Run stats: counters captured when the run ended
//
// # Ordering
//
// Events are ordered by seq, the scheduler's logical sequence number, never
// by wall time. Reading a run back yields exactly the publish order.
//
// # Recording
//
// A Recorder subscribes to a scheduler's EventBus and buffers events in
// memory; nothing touches SQLite inside a tick. Flush writes the buffer in
// one transaction once the run is over.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait up to 5s for locks
//   - foreign_keys=ON: events and stats must reference a run
package journal
