package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports prerequisite cycles found while building a catalog.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		parts = append(parts, strings.Join(c, " -> "))
	}
	return fmt.Sprintf("prerequisite cycle: %s", strings.Join(parts, "; "))
}

// findCycles runs Tarjan's SCC over the prerequisite graph (unlockable -> prerequisite)
// and returns each non-trivial component as a closed path. Node order is sorted so
// the result is deterministic.
func findCycles(items []Unlockable) [][]string {
	graph := make(map[string][]string, len(items))
	nodes := make([]string, 0, len(items))
	for _, u := range items {
		deps := append([]string(nil), u.Prerequisites...)
		sort.Strings(deps)
		graph[u.ID] = deps
		nodes = append(nodes, u.ID)
	}
	sort.Strings(nodes)

	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		cycles  [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || selfLoop(v, graph) {
			sort.Strings(scc)
			cycles = append(cycles, append(scc, scc[0]))
		}
	}

	for _, v := range nodes {
		if _, seen := indices[v]; !seen {
			strongConnect(v)
		}
	}
	return cycles
}

func selfLoop(v string, graph map[string][]string) bool {
	for _, w := range graph[v] {
		if w == v {
			return true
		}
	}
	return false
}
