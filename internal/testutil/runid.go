package testutil

import "fmt"

// FixedRunIDGenerator hands out predictable run IDs: the fixed prefix
// followed by a counter ("run-0001", "run-0002", ...).
//
// Journaled runs get the same IDs on every test run, so golden output that
// includes them stays stable.
//
// Thread-safety: none. Journals are written from one goroutine.
type FixedRunIDGenerator struct {
	prefix string
	n      int
}

// NewFixedRunIDGenerator creates a generator. An empty prefix means "run".
func NewFixedRunIDGenerator(prefix string) *FixedRunIDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &FixedRunIDGenerator{prefix: prefix}
}

// Generate returns the next run ID.
func (g *FixedRunIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
