// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

// Package resolver orders plugin dependency graphs. It is a pure
// algorithm over descriptor-shaped nodes: it holds no runtime state
// and reports outcomes as structured values, never as errors.
package resolver

// Node is the algorithmic view of a descriptor used during resolution.
type Node struct {
	Name                 string
	Version              string
	Dependencies         []string
	OptionalDependencies []string
	Conflicts            []string
}

// Status is the outcome of dependency-graph analysis. Missing
// dependencies do not get their own status: they are folded into a
// RESOLVED result's Missing field.
type Status string

// Resolution statuses.
const (
	StatusResolved Status = "resolved"
	StatusConflict Status = "conflict"
	StatusCircular Status = "circular"
)

// Conflict records one declared conflict whose target is present.
type Conflict struct {
	Name          string // declaring node
	ConflictsWith string // present node it conflicts with
}

// Result describes the outcome of Resolve.
//
// On StatusConflict, LoadOrder is empty: conflicts are a safety
// property that dominates ordering. On StatusCircular, LoadOrder still
// contains every node outside the detected cycles (partial progress is
// preserved). On StatusResolved, LoadOrder is a valid topological
// ordering and Missing lists required dependencies absent from the
// node set.
type Result struct {
	Status    Status
	LoadOrder []string
	Missing   []string
	Circular  [][]string
	Conflicts []Conflict
}

// Resolver accumulates nodes and resolves them into a load order.
// Insertion order breaks ties in the output for determinism.
// Resolver is not safe for concurrent use; callers own synchronization.
type Resolver struct {
	nodes map[string]Node
	order []string
}

// New creates an empty resolver.
func New() *Resolver {
	return &Resolver{nodes: make(map[string]Node)}
}

// Add inserts a node. Re-adding a name replaces the node but keeps its
// original insertion position.
func (r *Resolver) Add(n Node) {
	if _, ok := r.nodes[n.Name]; !ok {
		r.order = append(r.order, n.Name)
	}
	r.nodes[n.Name] = n
}

// AddAll inserts nodes in slice order.
func (r *Resolver) AddAll(nodes []Node) {
	for _, n := range nodes {
		r.Add(n)
	}
}

// Get returns the node registered under name.
func (r *Resolver) Get(name string) (Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// NodeCount returns the current graph size.
func (r *Resolver) NodeCount() int {
	return len(r.nodes)
}

// Clear resets the resolver to empty.
func (r *Resolver) Clear() {
	r.nodes = make(map[string]Node)
	r.order = nil
}

// Resolve analyzes the node set. Checks run in a fixed precedence:
// conflicts first (halting without any order), then cycles, then a
// topological sort that folds missing-dependency detection in. An
// empty node set resolves trivially.
func (r *Resolver) Resolve() Result {
	if conflicts := r.findConflicts(); len(conflicts) > 0 {
		return Result{Status: StatusConflict, Conflicts: conflicts}
	}

	cycles, onCycle := r.findCycles()

	order, missing := r.sort(onCycle)

	if len(cycles) > 0 {
		return Result{
			Status:    StatusCircular,
			LoadOrder: order,
			Missing:   missing,
			Circular:  cycles,
		}
	}

	return Result{
		Status:    StatusResolved,
		LoadOrder: order,
		Missing:   missing,
	}
}

// findConflicts returns every declared conflict whose target (or self)
// is present in the node set, in insertion order.
func (r *Resolver) findConflicts() []Conflict {
	var out []Conflict
	for _, name := range r.order {
		n := r.nodes[name]
		for _, c := range n.Conflicts {
			if _, present := r.nodes[c]; present || c == name {
				out = append(out, Conflict{Name: name, ConflictsWith: c})
			}
		}
	}
	return out
}

// findCycles runs a depth-first traversal over required dependency
// edges with a recursion stack, collecting each distinct cycle and the
// set of nodes participating in any cycle.
func (r *Resolver) findCycles() ([][]string, map[string]bool) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(r.nodes))
	onCycle := make(map[string]bool)
	var cycles [][]string
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		state[name] = visiting
		stack = append(stack, name)

		for _, dep := range r.nodes[name].Dependencies {
			if _, present := r.nodes[dep]; !present {
				continue // missing deps are the sort's concern
			}
			switch state[dep] {
			case unvisited:
				visit(dep)
			case visiting:
				// Slice the recursion stack from dep to the top: that
				// segment is the cycle.
				for idx := len(stack) - 1; idx >= 0; idx-- {
					if stack[idx] == dep {
						cycle := append([]string(nil), stack[idx:]...)
						cycles = append(cycles, cycle)
						for _, member := range cycle {
							onCycle[member] = true
						}
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
	}

	for _, name := range r.order {
		if state[name] == unvisited {
			visit(name)
		}
	}

	return cycles, onCycle
}

// sort produces a topological ordering of all nodes outside detected
// cycles, ties broken by insertion order, and collects required
// dependencies that are absent from the node set. Optional
// dependencies order the output when present but never appear in
// missing and never block.
func (r *Resolver) sort(exclude map[string]bool) (order []string, missing []string) {
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	seenMissing := make(map[string]bool)

	for _, name := range r.order {
		if exclude[name] {
			continue
		}
		indegree[name] = 0
	}

	addEdge := func(from, to string) {
		// Edge from dependency to dependent.
		dependents[from] = append(dependents[from], to)
		indegree[to]++
	}

	for _, name := range r.order {
		if exclude[name] {
			continue
		}
		n := r.nodes[name]
		for _, dep := range n.Dependencies {
			if _, present := r.nodes[dep]; !present {
				if !seenMissing[dep] {
					seenMissing[dep] = true
					missing = append(missing, dep)
				}
				continue
			}
			if exclude[dep] {
				continue
			}
			addEdge(dep, name)
		}
		for _, dep := range n.OptionalDependencies {
			if _, present := r.nodes[dep]; !present || exclude[dep] {
				continue
			}
			addEdge(dep, name)
		}
	}

	// Kahn's algorithm, always picking the lowest insertion index among
	// ready nodes so ties follow insertion order.
	placed := make(map[string]bool, len(indegree))
	for len(order) < len(indegree) {
		picked := ""
		for _, name := range r.order {
			if exclude[name] || placed[name] {
				continue
			}
			if indegree[name] == 0 {
				picked = name
				break
			}
		}
		if picked == "" {
			// Only optional edges can stall here (required cycles were
			// excluded above). Break the stall by taking the earliest
			// remaining node.
			for _, name := range r.order {
				if !exclude[name] && !placed[name] {
					picked = name
					break
				}
			}
		}
		placed[picked] = true
		order = append(order, picked)
		for _, dependent := range dependents[picked] {
			indegree[dependent]--
		}
	}

	return order, missing
}

// Layers groups a resolved order into dependency-free layers: every
// node's present dependencies (required and optional) live in strictly
// earlier layers. Callers may parallelize initialization within a
// layer but never across layers. Layers returns nil unless Resolve
// reports StatusResolved.
func (r *Resolver) Layers() [][]string {
	res := r.Resolve()
	if res.Status != StatusResolved {
		return nil
	}

	depth := make(map[string]int, len(res.LoadOrder))
	maxDepth := 0
	for _, name := range res.LoadOrder {
		d := 0
		n := r.nodes[name]
		for _, dep := range append(append([]string(nil), n.Dependencies...), n.OptionalDependencies...) {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]string, maxDepth+1)
	for _, name := range res.LoadOrder {
		layers[depth[name]] = append(layers[depth[name]], name)
	}
	return layers
}
