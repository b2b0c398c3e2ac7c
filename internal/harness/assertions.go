package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			if ev.Type == StepEntry {
				fmt.Fprintf(&buf, "  [%d] step %s #%d\n", ev.Seq, ev.Task, ev.Call)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.Key())
		}
	}

	return buf.String()
}

// splitKey parses "event" or "event:task".
func splitKey(key string) (event, task string) {
	event, task, _ = strings.Cut(key, ":")
	return event, task
}

func matches(ev TraceEvent, event, task string) bool {
	return ev.Type == event && (task == "" || ev.Task == task)
}

func describe(event, task string) string {
	if task == "" {
		return event
	}
	return event + " for " + task
}

// assertTraceContains checks that an entry matches the event and task.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Event, a.Task) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a.Event, a.Task),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrence of every key appears in
// the given order. Keys don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make([]int, len(a.Order))
	for i, key := range a.Order {
		event, task := splitKey(key)
		positions[i] = -1
		for j, ev := range trace {
			if matches(ev, event, task) {
				positions[i] = j
				break
			}
		}
		if positions[i] < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all entries present: %v", a.Order),
				Actual:   fmt.Sprintf("missing entry: %s", key),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", a.Order),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					a.Order[i-1], positions[i-1]+1, a.Order[i], positions[i]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count entries match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Event, a.Task) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a.Event, a.Task)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// checkExpect compares the final snapshot with e.
func checkExpect(e *Expect, r *Result) []string {
	if e == nil {
		return nil
	}
	var errs []string
	if e.State != "" && e.State != r.Final.State {
		errs = append(errs, fmt.Sprintf("expect.state: want %s, got %s", e.State, r.Final.State))
	}
	check := func(field string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("expect.%s: want %d, got %d", field, *want, got))
		}
	}
	check("tasks", e.Tasks, r.Final.Tasks)
	check("queued", e.Queued, r.Final.Queued)
	check("generators", e.Generators, r.Final.Generators)
	return errs
}
