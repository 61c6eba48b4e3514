package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/c360studio/practiceflow/entity"
)

// Graph is the directed dependency graph of one project's tasks, built from
// blocks-kind relations only. It is a read-time projection: recompute it
// whenever task state may have changed, never cache it across requests.
type Graph struct {
	tasks      map[string]*entity.Task
	blockers   map[string][]string // task -> tasks that block it
	dependents map[string][]string // task -> tasks it blocks
	edges      []entity.Edge
}

// BuildGraph loads a project's tasks and blocks relations into a Graph.
// Relations of other kinds and edges referencing unknown tasks are ignored.
func (e *Engine) BuildGraph(ctx context.Context, projectID string) (*Graph, error) {
	tasks, err := e.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	relations, err := e.store.ListRelationsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project relations: %w", err)
	}
	return NewGraph(tasks, relations), nil
}

// NewGraph constructs a Graph from pre-fetched tasks and relations.
func NewGraph(tasks []*entity.Task, relations []*entity.TaskRelation) *Graph {
	g := &Graph{
		tasks:      make(map[string]*entity.Task, len(tasks)),
		blockers:   make(map[string][]string),
		dependents: make(map[string][]string),
	}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}

	seen := make(map[entity.Edge]bool)
	for _, r := range relations {
		if r.Kind != entity.RelationBlocks {
			continue
		}
		if g.tasks[r.FromTaskID] == nil || g.tasks[r.ToTaskID] == nil {
			continue
		}
		edge := entity.Edge{From: r.FromTaskID, To: r.ToTaskID}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		g.edges = append(g.edges, edge)
		g.dependents[edge.From] = append(g.dependents[edge.From], edge.To)
		g.blockers[edge.To] = append(g.blockers[edge.To], edge.From)
	}

	// Sort adjacency for deterministic traversal.
	for k := range g.dependents {
		sort.Strings(g.dependents[k])
	}
	for k := range g.blockers {
		sort.Strings(g.blockers[k])
	}
	return g
}

// withEdge returns a copy of the graph with one extra blocks edge, used to
// validate a prospective relation without persisting it.
func (g *Graph) withEdge(from, to string) *Graph {
	next := &Graph{
		tasks:      g.tasks,
		blockers:   make(map[string][]string, len(g.blockers)+1),
		dependents: make(map[string][]string, len(g.dependents)+1),
		edges:      append(append([]entity.Edge{}, g.edges...), entity.Edge{From: from, To: to}),
	}
	for k, v := range g.blockers {
		next.blockers[k] = v
	}
	for k, v := range g.dependents {
		next.dependents[k] = v
	}
	next.dependents[from] = append(append([]string{}, g.dependents[from]...), to)
	next.blockers[to] = append(append([]string{}, g.blockers[to]...), from)
	sort.Strings(next.dependents[from])
	sort.Strings(next.blockers[to])
	return next
}

// FindCycle returns the edges of the first dependency cycle found, or nil
// if the graph is acyclic. Traversal order is sorted, so the same graph
// always reports the same cycle.
func (g *Graph) FindCycle() []entity.Edge {
	nodes := make(map[string]bool, len(g.tasks))
	for id := range g.tasks {
		nodes[id] = true
	}
	return entity.FindCycle(nodes, g.dependents)
}

// UnresolvedBlockers returns the IDs of tasks that block the given task and
// are not yet completed. A blocked or todo blocker still blocks; only
// completion resolves an edge.
func (g *Graph) UnresolvedBlockers(taskID string) []string {
	var unresolved []string
	for _, blockerID := range g.blockers[taskID] {
		if blocker := g.tasks[blockerID]; blocker != nil && blocker.Status != entity.TaskStatusCompleted {
			unresolved = append(unresolved, blockerID)
		}
	}
	return unresolved
}

// TopologicalReady returns the project's incomplete tasks in the order they
// become workable: tasks with zero unresolved blockers first, then tasks
// released as their blockers would complete. Ties are broken by ascending
// due date (tasks without one last), priority rank, creation time, then ID,
// so the ordering is fully deterministic for a given task/edge set.
func (g *Graph) TopologicalReady() []string {
	// Count only blocking edges from incomplete tasks; completed blockers
	// are already resolved.
	pending := make(map[string]int, len(g.tasks))
	var candidates []string
	for id, t := range g.tasks {
		if t.Status == entity.TaskStatusCompleted {
			continue
		}
		candidates = append(candidates, id)
		pending[id] = len(g.UnresolvedBlockers(id))
	}

	sort.Slice(candidates, func(i, j int) bool {
		return g.less(candidates[i], candidates[j])
	})

	order := make([]string, 0, len(candidates))
	emitted := make(map[string]bool, len(candidates))
	for len(order) < len(candidates) {
		progressed := false
		for _, id := range candidates {
			if emitted[id] || pending[id] > 0 {
				continue
			}
			emitted[id] = true
			order = append(order, id)
			progressed = true
			for _, dep := range g.dependents[id] {
				if _, ok := pending[dep]; ok {
					pending[dep]--
				}
			}
		}
		if !progressed {
			// Remaining tasks are on a cycle; append them in sorted
			// order rather than looping forever.
			for _, id := range candidates {
				if !emitted[id] {
					emitted[id] = true
					order = append(order, id)
				}
			}
		}
	}
	return order
}

// less orders tasks by due date, priority rank, creation time, then ID.
func (g *Graph) less(a, b string) bool {
	ta, tb := g.tasks[a], g.tasks[b]

	switch {
	case ta.DueDate != nil && tb.DueDate == nil:
		return true
	case ta.DueDate == nil && tb.DueDate != nil:
		return false
	case ta.DueDate != nil && tb.DueDate != nil && !ta.DueDate.Equal(*tb.DueDate):
		return ta.DueDate.Before(*tb.DueDate)
	}

	if ra, rb := ta.Priority.Rank(), tb.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if !ta.CreatedAt.Equal(tb.CreatedAt) {
		return ta.CreatedAt.Before(tb.CreatedAt)
	}
	return ta.ID < tb.ID
}
