// Package chronos implements a cooperative, frame-budgeted task scheduler.
//
// Long-running incremental computations (progressive drawing passes,
// iterative layout algorithms) are registered as tasks whose step function
// is polled repeatedly. The scheduler runs steps in round-robin order for at
// most one corrected time budget, then yields back to the host through a
// deferred-callback primitive and resumes on the next frame.
//
// ARCHITECTURE:
//
// Single Logical Thread:
// A Scheduler is owned by exactly one goroutine, the one that runs the
// deferred callbacks (see Loop and ManualDeferrer). No locks are taken inside
// the scheduler; reentrancy from steps and event handlers is handled
// explicitly instead.
//
// Components:
//   - EventBus: typed, synchronous publish/subscribe for lifecycle events
//   - taskRegistry: active and queued (dependent) task lists
//   - Scheduler: the tick driver and its self-correcting frame budget
//   - generatorRotation: condition-gated tasks admitted in barrier-synchronised waves
//
// Frame Budget:
// With nominal = 1s / frequency, every tick measures its own duration and the
// next tick gets nominal - (measured - nominal). Overruns shrink the next
// budget and early finishes grow it, so the average cadence tracks the target
// frequency. A step is never interrupted: one slow step delays the host by
// its own duration.
//
// Dependent Tasks:
// A queued task starts only after its parent is removed with QueuePromote,
// which is what the tick driver does when a step returns Done.
//
// Generator Waves:
// All generators are admitted together. A new wave starts only when every
// generator of the current wave has completed its run.
package chronos
