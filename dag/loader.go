package dag

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// PipelineFile is the YAML representation of a pipeline definition.
type PipelineFile struct {
	// Name is the pipeline identifier.
	Name string `yaml:"name"`
	// Stages defines the pipeline's stage specifications.
	Stages []Stage `yaml:"stages"`
}

// LoadGraph reads a pipeline YAML file and resolves it into a Graph.
// Duplicate stage names and unknown dependencies are rejected.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dag: reading %s: %w", path, err)
	}
	return ParseGraph(data)
}

// ParseGraph resolves a pipeline definition from YAML bytes.
func ParseGraph(data []byte) (*Graph, error) {
	var p PipelineFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("dag: parsing pipeline definition: %w", err)
	}

	g := NewGraph()
	for _, s := range p.Stages {
		if err := g.AddStage(s); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
