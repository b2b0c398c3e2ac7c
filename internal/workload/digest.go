package workload

import "github.com/roach88/chronos/internal/canon"

// DigestDomain separates workload digests from other canonical hashes.
const DigestDomain = "chronos/workload/v1"

// Digest identifies w by content: two workloads with the same tasks and
// generators, in the same order, share a digest.
func Digest(w Workload) (string, error) {
	return canon.Digest(DigestDomain, canonical(w))
}

func canonical(w Workload) canon.Object {
	tasks := make(canon.Array, len(w.Tasks))
	for i, ts := range w.Tasks {
		obj := canon.Object{"name": ts.Name, "steps": ts.Steps}
		if ts.Cost != "" {
			obj["cost"] = ts.Cost
		}
		if ts.After != "" {
			obj["after"] = ts.After
		}
		tasks[i] = obj
	}

	gens := make(canon.Array, len(w.Generators))
	for i, gs := range w.Generators {
		obj := canon.Object{"id": gs.ID, "steps": gs.Steps, "rounds": gs.Rounds}
		if gs.Cost != "" {
			obj["cost"] = gs.Cost
		}
		gens[i] = obj
	}

	return canon.Object{"tasks": tasks, "generators": gens}
}
