package dag

import (
	"sort"
	"strings"

	"github.com/stageflow/stageflow/errors"
)

// TopoSort returns the stage names in a valid execution order: every stage
// appears after all of its dependencies. The visit is a depth-first search
// over sorted stage names, so the order among independent branches is
// unspecified but deterministic for a fixed graph.
//
// A cycle is reported as a CYCLE_DETECTED error naming the offending path;
// the in-progress set below is what turns it into a clean error instead of
// unbounded recursion.
func TopoSort(g *Graph) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	visited := make(map[string]bool, g.Len())
	visiting := make(map[string]bool, g.Len())
	order := make([]string, 0, g.Len())
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return errors.Newf(errors.CodeCycle,
				"dependency cycle: %s -> %s", strings.Join(path, " -> "), name)
		}
		visiting[name] = true
		path = append(path, name)

		stage := g.stages[name]
		deps := append([]string(nil), stage.DependsOn...)
		// Sorted for determinism; map iteration order is not stable in Go.
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		delete(visiting, name)
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range g.Names() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
