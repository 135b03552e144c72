package dag

import (
	"testing"

	"github.com/stageflow/stageflow/errors"
)

func mustAdd(t *testing.T, g *Graph, s Stage) {
	t.Helper()
	if err := g.AddStage(s); err != nil {
		t.Fatalf("adding stage %s: %v", s.Name, err)
	}
}

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestTopoSort_Linear(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "ingestion", LogicVersion: "v1"})
	mustAdd(t, g, Stage{Name: "normalization", DependsOn: []string{"ingestion"}, LogicVersion: "v1"})
	mustAdd(t, g, Stage{Name: "validation", DependsOn: []string{"normalization"}, LogicVersion: "v1"})
	mustAdd(t, g, Stage{Name: "merge", DependsOn: []string{"validation"}, LogicVersion: "v1"})

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"ingestion", "normalization", "validation", "merge"}
	if len(order) != len(want) {
		t.Fatalf("expected %d stages, got %v", len(want), order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestTopoSort_Diamond(t *testing.T) {
	// A -> B, A -> C, {B,C} -> D.
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "a"})
	mustAdd(t, g, Stage{Name: "b", DependsOn: []string{"a"}})
	mustAdd(t, g, Stage{Name: "c", DependsOn: []string{"a"}})
	mustAdd(t, g, Stage{Name: "d", DependsOn: []string{"b", "c"}})

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order[0] != "a" {
		t.Fatalf("expected a first, got %v", order)
	}
	if order[3] != "d" {
		t.Fatalf("expected d last, got %v", order)
	}
	if indexOf(order, "b") < 1 || indexOf(order, "c") < 1 {
		t.Fatalf("b and c must occupy the middle: %v", order)
	}
}

func TestTopoSort_NeverBeforeDependency(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "w"})
	mustAdd(t, g, Stage{Name: "x", DependsOn: []string{"w"}})
	mustAdd(t, g, Stage{Name: "y", DependsOn: []string{"w"}})
	mustAdd(t, g, Stage{Name: "z", DependsOn: []string{"x", "y"}})

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range order {
		s, _ := g.Stage(name)
		for _, dep := range s.DependsOn {
			if indexOf(order, dep) > indexOf(order, name) {
				t.Fatalf("stage %s placed before dependency %s: %v", name, dep, order)
			}
		}
	}
}

func TestTopoSort_Deterministic(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		mustAdd(t, g, Stage{Name: "root"})
		mustAdd(t, g, Stage{Name: "left", DependsOn: []string{"root"}})
		mustAdd(t, g, Stage{Name: "right", DependsOn: []string{"root"}})
		return g
	}

	first, err := TopoSort(build())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := TopoSort(build())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("order changed between runs: %v vs %v", first, again)
			}
		}
	}
}

func TestTopoSort_TwoCycle(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "a", DependsOn: []string{"b"}})
	mustAdd(t, g, Stage{Name: "b", DependsOn: []string{"a"}})

	_, err := TopoSort(g)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.HasCode(err, errors.CodeCycle) {
		t.Fatalf("expected CYCLE_DETECTED, got %v", err)
	}
}

func TestTopoSort_SelfCycle(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "a", DependsOn: []string{"a"}})

	_, err := TopoSort(g)
	if !errors.HasCode(err, errors.CodeCycle) {
		t.Fatalf("expected CYCLE_DETECTED, got %v", err)
	}
}

func TestGraph_UnknownDependency(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "a", DependsOn: []string{"ghost"}})

	_, err := TopoSort(g)
	if !errors.HasCode(err, errors.CodeUnknownStage) {
		t.Fatalf("expected UNKNOWN_STAGE, got %v", err)
	}
}

func TestGraph_DuplicateStage(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, Stage{Name: "a"})
	if err := g.AddStage(Stage{Name: "a"}); err == nil {
		t.Fatal("expected duplicate stage error")
	}
}
