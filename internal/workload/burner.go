package workload

import "time"

// Burner simulates the CPU time a step takes.
type Burner interface {
	Burn(d time.Duration)
}

// SpinBurner busy-waits on the wall clock. A sleeping step would hand the
// thread back to the runtime, which is exactly what a step must not do.
type SpinBurner struct{}

// Burn spins until d has elapsed.
func (SpinBurner) Burn(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// NopBurner makes every step free.
type NopBurner struct{}

// Burn does nothing.
func (NopBurner) Burn(time.Duration) {}

// BurnFunc adapts a function, typically advancing a fake clock.
type BurnFunc func(d time.Duration)

// Burn calls f(d).
func (f BurnFunc) Burn(d time.Duration) {
	f(d)
}
