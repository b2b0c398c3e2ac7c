package workload

// DrawPasses returns the progressive drawing pipeline of a graph view as a
// workload: the node pass runs first, then edges, then labels, each queued
// behind the previous one. Each pass draws batch items per step.
//
// Task names are prefix + "_nodes", prefix + "_edges" and prefix + "_labels".
func DrawPasses(prefix string, nodes, edges, batch int, cost string) Workload {
	if batch < 1 {
		batch = 1
	}
	passes := []struct {
		suffix string
		items  int
	}{
		{"_nodes", nodes},
		{"_edges", edges},
		{"_labels", nodes},
	}

	var w Workload
	prev := ""
	for _, p := range passes {
		steps := (p.items + batch - 1) / batch
		if steps < 1 {
			steps = 1
		}
		w.Tasks = append(w.Tasks, TaskSpec{
			Name:  prefix + p.suffix,
			Steps: steps,
			Cost:  cost,
			After: prev,
		})
		prev = prefix + p.suffix
	}
	return w
}
