package workflow

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/c360studio/practiceflow/entity"
)

func graphTask(id string, status entity.TaskStatus, priority entity.Priority, due *time.Time, created time.Time) *entity.Task {
	return &entity.Task{
		ID:        id,
		Title:     id,
		Status:    status,
		Priority:  priority,
		DueDate:   due,
		CreatedAt: created,
	}
}

func blocksEdge(from, to string) *entity.TaskRelation {
	return &entity.TaskRelation{
		ID:         "relation:" + from + "-" + to,
		FromTaskID: from,
		ToTaskID:   to,
		Kind:       entity.RelationBlocks,
		ProjectID:  "project:p1",
	}
}

func TestGraph_FindCycle(t *testing.T) {
	base := time.Now()
	tasks := []*entity.Task{
		graphTask("task:a", entity.TaskStatusTodo, entity.PriorityMedium, nil, base),
		graphTask("task:b", entity.TaskStatusTodo, entity.PriorityMedium, nil, base),
		graphTask("task:c", entity.TaskStatusTodo, entity.PriorityMedium, nil, base),
	}

	t.Run("acyclic chain", func(t *testing.T) {
		g := NewGraph(tasks, []*entity.TaskRelation{
			blocksEdge("task:a", "task:b"),
			blocksEdge("task:b", "task:c"),
		})
		if edges := g.FindCycle(); edges != nil {
			t.Errorf("unexpected cycle: %v", edges)
		}
	})

	t.Run("cycle reports edges", func(t *testing.T) {
		g := NewGraph(tasks, []*entity.TaskRelation{
			blocksEdge("task:a", "task:b"),
			blocksEdge("task:b", "task:c"),
			blocksEdge("task:c", "task:a"),
		})
		edges := g.FindCycle()
		if len(edges) != 3 {
			t.Fatalf("cycle edges = %v, want 3 edges", edges)
		}
	})

	t.Run("non-blocks edges are ignored", func(t *testing.T) {
		related := blocksEdge("task:c", "task:a")
		related.Kind = entity.RelationRelatedTo
		g := NewGraph(tasks, []*entity.TaskRelation{
			blocksEdge("task:a", "task:b"),
			blocksEdge("task:b", "task:c"),
			related, // would close the loop if it counted
		})
		if edges := g.FindCycle(); edges != nil {
			t.Errorf("related_to edge treated as blocking: %v", edges)
		}
	})

	t.Run("edges to unknown tasks are ignored", func(t *testing.T) {
		g := NewGraph(tasks, []*entity.TaskRelation{
			blocksEdge("task:a", "task:ghost"),
			blocksEdge("task:ghost", "task:a"),
		})
		if edges := g.FindCycle(); edges != nil {
			t.Errorf("ghost edges produced a cycle: %v", edges)
		}
	})
}

func TestGraph_UnresolvedBlockers(t *testing.T) {
	base := time.Now()
	a := graphTask("task:a", entity.TaskStatusCompleted, entity.PriorityMedium, nil, base)
	b := graphTask("task:b", entity.TaskStatusInProgress, entity.PriorityMedium, nil, base)
	c := graphTask("task:c", entity.TaskStatusTodo, entity.PriorityMedium, nil, base)

	g := NewGraph([]*entity.Task{a, b, c}, []*entity.TaskRelation{
		blocksEdge("task:a", "task:c"),
		blocksEdge("task:b", "task:c"),
	})

	// A completed blocker is resolved; an in_progress one is not.
	got := g.UnresolvedBlockers("task:c")
	if !reflect.DeepEqual(got, []string{"task:b"}) {
		t.Errorf("unresolved = %v, want [task:b]", got)
	}

	if got := g.UnresolvedBlockers("task:a"); got != nil {
		t.Errorf("unresolved for root = %v, want nil", got)
	}
}

func TestGraph_TopologicalReady_Ordering(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	soon := base.AddDate(0, 0, 7)
	later := base.AddDate(0, 0, 30)

	tasks := []*entity.Task{
		graphTask("task:late-low", entity.TaskStatusTodo, entity.PriorityLow, &later, base),
		graphTask("task:soon-med", entity.TaskStatusTodo, entity.PriorityMedium, &soon, base.Add(time.Minute)),
		graphTask("task:soon-urgent", entity.TaskStatusTodo, entity.PriorityUrgent, &soon, base.Add(2*time.Minute)),
		graphTask("task:nodue", entity.TaskStatusTodo, entity.PriorityUrgent, nil, base),
		graphTask("task:gated", entity.TaskStatusTodo, entity.PriorityUrgent, &soon, base),
	}
	g := NewGraph(tasks, []*entity.TaskRelation{
		blocksEdge("task:late-low", "task:gated"),
	})

	got := g.TopologicalReady()
	want := []string{
		"task:soon-urgent", // earliest due, best priority
		"task:soon-med",    // earliest due, worse priority
		"task:late-low",    // later due
		"task:nodue",       // no due date sorts last among ready
		"task:gated",       // released only after late-low
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestGraph_TopologicalReady_ExcludesCompleted(t *testing.T) {
	base := time.Now()
	a := graphTask("task:a", entity.TaskStatusCompleted, entity.PriorityMedium, nil, base)
	b := graphTask("task:b", entity.TaskStatusTodo, entity.PriorityMedium, nil, base)
	g := NewGraph([]*entity.Task{a, b}, []*entity.TaskRelation{
		blocksEdge("task:a", "task:b"),
	})

	got := g.TopologicalReady()
	if !reflect.DeepEqual(got, []string{"task:b"}) {
		t.Errorf("order = %v, want [task:b]", got)
	}
}

// TestGraph_TopologicalReady_Deterministic verifies that two invocations
// over the same randomly generated task/edge set return identical orderings.
func TestGraph_TopologicalReady_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		priorities := []entity.Priority{
			entity.PriorityLow, entity.PriorityMedium, entity.PriorityHigh, entity.PriorityUrgent,
		}

		tasks := make([]*entity.Task, n)
		for i := range tasks {
			var due *time.Time
			if rapid.Bool().Draw(rt, fmt.Sprintf("hasdue%d", i)) {
				d := base.AddDate(0, 0, rapid.IntRange(0, 5).Draw(rt, fmt.Sprintf("due%d", i)))
				due = &d
			}
			status := entity.TaskStatusTodo
			if rapid.Bool().Draw(rt, fmt.Sprintf("done%d", i)) {
				status = entity.TaskStatusCompleted
			}
			tasks[i] = graphTask(
				fmt.Sprintf("task:%02d", i),
				status,
				priorities[rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("prio%d", i))],
				due,
				base.Add(time.Duration(rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("created%d", i)))*time.Hour),
			)
		}

		// Forward-only edges keep the graph acyclic.
		var relations []*entity.TaskRelation
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("edge%d_%d", i, j)) == 0 {
					relations = append(relations, blocksEdge(tasks[i].ID, tasks[j].ID))
				}
			}
		}

		first := NewGraph(tasks, relations).TopologicalReady()
		second := NewGraph(tasks, relations).TopologicalReady()
		if !reflect.DeepEqual(first, second) {
			rt.Fatalf("orderings differ:\n%v\n%v", first, second)
		}

		// Every incomplete task appears exactly once.
		seen := make(map[string]int)
		for _, id := range first {
			seen[id]++
		}
		for _, task := range tasks {
			want := 1
			if task.Status == entity.TaskStatusCompleted {
				want = 0
			}
			if seen[task.ID] != want {
				rt.Fatalf("task %s appears %d times, want %d", task.ID, seen[task.ID], want)
			}
		}
	})
}
