// Package validation checks stage plans before a pipeline runs them.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Node is one entry of a dependency graph: a named step and the steps whose
// output it consumes.
type Node struct {
	Name     string
	Requires []string
}

// Report is the outcome of analysing a graph.
type Report struct {
	HasCycle  bool
	CyclePath []string // names involved in the cycle, if any
	Order     []string // a topological order, if acyclic
	Unknown   []string // "step->dependency" pairs naming missing steps
}

var (
	ErrCycle             = errors.New("circular dependency")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrOutOfOrder        = errors.New("dependency listed after its consumer")
	ErrDuplicate         = errors.New("duplicate step")
)

// Analyze runs Kahn's algorithm over nodes. Ties are broken by name so the
// returned order is stable.
func Analyze(nodes []Node) Report {
	if len(nodes) == 0 {
		return Report{Order: []string{}}
	}

	inDegree := make(map[string]int, len(nodes))
	consumers := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n.Name] = 0
	}

	var rep Report
	for _, n := range nodes {
		for _, dep := range n.Requires {
			if dep == n.Name {
				rep.HasCycle = true
				rep.CyclePath = []string{n.Name, n.Name}
				continue
			}
			if _, ok := inDegree[dep]; !ok {
				rep.Unknown = append(rep.Unknown, n.Name+"->"+dep)
				continue
			}
			consumers[dep] = append(consumers[dep], n.Name)
			inDegree[n.Name]++
		}
	}
	if rep.HasCycle {
		return rep
	}

	var ready []string
	for name, d := range inDegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(inDegree))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		var next []string
		for _, c := range consumers[current] {
			inDegree[c]--
			if inDegree[c] == 0 {
				next = append(next, c)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}

	if len(order) == len(inDegree) {
		rep.Order = order
		return rep
	}

	var stuck []string
	for name, d := range inDegree {
		if d > 0 {
			stuck = append(stuck, name)
		}
	}
	sort.Strings(stuck)
	rep.HasCycle = true
	rep.CyclePath = cyclePath(consumers, stuck)
	return rep
}

// cyclePath walks the stuck subgraph until a node repeats.
func cyclePath(consumers map[string][]string, stuck []string) []string {
	inCycle := make(map[string]bool, len(stuck))
	for _, n := range stuck {
		inCycle[n] = true
	}

	var walk func(node string, path []string, onPath map[string]int) []string
	walk = func(node string, path []string, onPath map[string]int) []string {
		if i, ok := onPath[node]; ok {
			return append(append([]string{}, path[i:]...), node)
		}
		onPath[node] = len(path)
		path = append(path, node)
		for _, next := range consumers[node] {
			if !inCycle[next] {
				continue
			}
			if found := walk(next, path, onPath); found != nil {
				return found
			}
		}
		delete(onPath, node)
		return nil
	}

	for _, start := range stuck {
		if found := walk(start, nil, map[string]int{}); len(found) > 1 {
			return found
		}
	}
	return stuck
}

// ValidatePlan checks that nodes form a runnable sequential plan: names are
// unique, every dependency exists, there are no cycles, and each node is
// listed after everything it requires.
func ValidatePlan(nodes []Node) error {
	seen := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicate, n.Name)
		}
		seen[n.Name] = i
	}

	rep := Analyze(nodes)
	if len(rep.Unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDependency, strings.Join(rep.Unknown, ", "))
	}
	if rep.HasCycle {
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(rep.CyclePath, " -> "))
	}

	for i, n := range nodes {
		for _, dep := range n.Requires {
			if seen[dep] > i {
				return fmt.Errorf("%w: %s requires %s", ErrOutOfOrder, n.Name, dep)
			}
		}
	}
	return nil
}
