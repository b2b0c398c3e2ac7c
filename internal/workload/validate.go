package workload

import "fmt"

// Validation error codes (E200-E299)
const (
	ErrEmptyName      = "E201" // task name or generator id is empty
	ErrInvalidSteps   = "E202" // steps must be >= 1
	ErrInvalidCost    = "E203" // cost is not a duration or is negative
	ErrUnknownAfter   = "E204" // after names no earlier task
	ErrDuplicateID    = "E205" // generator id used twice
	ErrInvalidRounds  = "E206" // rounds must be >= 0
	ErrSelfDependency = "E207" // task queued behind itself
)

// ValidationError describes one problem in a workload.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a workload. Returns all errors found (does not fail-fast).
//
// Duplicate task names are allowed, as they are in the scheduler. A task's
// "after" must name a task declared earlier in the list, because a queued
// task's parent has to exist when it is registered.
func Validate(w Workload) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i, ts := range w.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if ts.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "name is required", Code: ErrEmptyName})
		}
		if ts.Steps < 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".steps",
				Message: fmt.Sprintf("steps must be at least 1, got %d", ts.Steps),
				Code:    ErrInvalidSteps,
			})
		}
		errs = append(errs, checkCost(field, ts.Cost)...)
		if ts.After != "" {
			switch {
			case ts.After == ts.Name:
				errs = append(errs, ValidationError{Field: field + ".after", Message: "task cannot wait for itself", Code: ErrSelfDependency})
			case !seen[ts.After]:
				errs = append(errs, ValidationError{
					Field:   field + ".after",
					Message: fmt.Sprintf("%q is not declared before %q", ts.After, ts.Name),
					Code:    ErrUnknownAfter,
				})
			}
		}
		seen[ts.Name] = true
	}

	ids := make(map[string]bool)
	for i, gs := range w.Generators {
		field := fmt.Sprintf("generators[%d]", i)
		if gs.ID == "" {
			errs = append(errs, ValidationError{Field: field + ".id", Message: "id is required", Code: ErrEmptyName})
		} else if ids[gs.ID] {
			errs = append(errs, ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate generator id %q", gs.ID), Code: ErrDuplicateID})
		}
		ids[gs.ID] = true
		if gs.Steps < 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".steps",
				Message: fmt.Sprintf("steps must be at least 1, got %d", gs.Steps),
				Code:    ErrInvalidSteps,
			})
		}
		if gs.Rounds < 0 {
			errs = append(errs, ValidationError{Field: field + ".rounds", Message: "rounds must not be negative", Code: ErrInvalidRounds})
		}
		errs = append(errs, checkCost(field, gs.Cost)...)
	}
	return errs
}

func checkCost(field, cost string) []ValidationError {
	d, err := parseCost(cost)
	if err != nil {
		return []ValidationError{{Field: field + ".cost", Message: err.Error(), Code: ErrInvalidCost}}
	}
	if d < 0 {
		return []ValidationError{{Field: field + ".cost", Message: "cost must not be negative", Code: ErrInvalidCost}}
	}
	return nil
}
