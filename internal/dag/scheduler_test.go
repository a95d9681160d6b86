package dag

import (
	"reflect"
	"testing"
)

func TestScheduler_ReadyPipelines_SortedByDepthThenName(t *testing.T) {
	g := mustGraph(t, def("A"), def("B"), def("C", "A"), def("D", "B"))

	// A and B completed => C and D become ready. Both are depth 1, so lexical by name.
	state := ExecutionState{
		"A": StateCompleted,
		"B": StateCompleted,
		"C": StatePending,
		"D": StatePending,
	}

	got := GetReadyPipelines(g, state)
	want := []string{"C", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_ReadyPipelines_RootsLexicalOrder(t *testing.T) {
	g := mustGraph(t, def("b"), def("C"), def("a"))
	state := ExecutionState{"a": StatePending, "b": StatePending, "C": StatePending}

	got := GetReadyPipelines(g, state)
	want := []string{"a", "b", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_ReadyPipelines_RequiresAllDependenciesCompleted(t *testing.T) {
	g := mustGraph(t, def("A"), def("B"), def("C", "A", "B"))
	state := ExecutionState{"A": StateCompleted, "B": StateRunning, "C": StatePending}
	if got := GetReadyPipelines(g, state); len(got) != 0 {
		t.Fatalf("expected nothing ready, got %v", got)
	}

	state["B"] = StateFaulted
	if got := GetReadyPipelines(g, state); len(got) != 0 {
		t.Fatalf("faulted dependency must not satisfy C, got %v", got)
	}
}

func TestScheduler_IsPure(t *testing.T) {
	g := mustGraph(t, def("A"), def("B", "A"))
	state := ExecutionState{"A": StatePending, "B": StatePending}
	before := state.Clone()
	_ = GetReadyPipelines(g, state)
	if !reflect.DeepEqual(before, state) {
		t.Fatalf("scheduler mutated state: %v", state)
	}
}
