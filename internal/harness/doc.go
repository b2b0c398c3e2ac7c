// Package harness runs scheduler scenarios deterministically and checks
// their lifecycle traces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: draw_pipeline
//	description: "Edges wait for nodes, labels wait for edges"
//	frequency: 50
//	workload:
//	  tasks:
//	    - { name: nodes, steps: 3, cost: 8ms }
//	    - { name: edges, steps: 2, cost: 8ms, after: nodes }
//	actions:
//	  - at_frame: 1
//	    remove_task: { name: nodes, policy: promote }
//	expect:
//	  state: idle
//	  tasks: 0
//	assertions:
//	  - type: trace_order
//	    order: ["killed:nodes", "killed:edges"]
//
// # Assertion Types
//
//   - trace_contains: an entry with the given event (and task) exists
//   - trace_order: entries appear in the given order, gaps allowed
//   - trace_count: an entry occurs exactly count times
//
// Trace entries are the scheduler's lifecycle events plus one "step" entry
// per step invocation, so "step:nodes" counts how often nodes ran.
//
// # Deterministic Execution
//
// The harness never touches the wall clock or a real host loop:
//   - a chronos.ManualDeferrer delivers the deferred callbacks one by one
//   - a testutil.FakeClock is the scheduler's clock, and every step advances
//     it by its declared cost
//   - a testutil.DeterministicClock numbers trace entries from 1
//
// Actions run between callbacks, once the number of frames inserted since
// the scenario began reaches at_frame. The same scenario always produces the
// same trace, which RunWithGolden compares against testdata/golden.
package harness
