package dag

import (
	"sort"

	"github.com/stageflow/stageflow/errors"
)

// Stage describes one node of the pipeline graph. Stages are defined at
// process start and immutable for the duration of a run.
type Stage struct {
	// Name uniquely identifies the stage.
	Name string `yaml:"name"`
	// DependsOn lists stage names that must complete first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Consumes lists symbolic data-category names the stage reads.
	Consumes []string `yaml:"consumes,omitempty"`
	// Produces lists symbolic data-category names the stage writes.
	Produces []string `yaml:"produces,omitempty"`
	// LogicVersion is an explicit, manually bumped identifier for the
	// stage's behavior. It participates in the cache key, so bumping it
	// forces re-execution even when inputs are unchanged.
	LogicVersion string `yaml:"logic_version"`
}

// Graph declares the pipeline's stages and their dependency edges.
type Graph struct {
	stages map[string]Stage
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{stages: make(map[string]Stage)}
}

// AddStage adds a stage to the graph. Duplicate names are rejected.
func (g *Graph) AddStage(s Stage) error {
	if s.Name == "" {
		return errors.New(errors.CodeInvalidInput, "stage name must not be empty")
	}
	if _, exists := g.stages[s.Name]; exists {
		return errors.Newf(errors.CodeInvalidInput, "duplicate stage %q", s.Name)
	}
	g.stages[s.Name] = s
	return nil
}

// Stage returns a stage by name.
func (g *Graph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.stages) }

// Names returns all stage names in sorted order. Sorting fixes the
// iteration order so repeated runs produce repeatable logs.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.stages))
	for name := range g.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every dependency references a declared stage.
func (g *Graph) Validate() error {
	for _, name := range g.Names() {
		for _, dep := range g.stages[name].DependsOn {
			if _, ok := g.stages[dep]; !ok {
				return errors.Newf(errors.CodeUnknownStage,
					"stage %q depends on unknown stage %q", name, dep)
			}
		}
	}
	return nil
}
