package entity

import (
	"fmt"
	"sort"
	"time"
)

// Template is a reusable blueprint for generating a project's task set.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`

	// Tasks is the ordered set of template tasks. Order is authoring order;
	// instancing derives its own topological order from DependsOn.
	Tasks []TemplateTask `json:"tasks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revision is the storage revision used for optimistic concurrency.
	Revision uint64 `json:"-"`
}

// TemplateTask describes one task blueprint within a template.
type TemplateTask struct {
	// Key identifies the task within its template. Referenced by DependsOn.
	Key string `json:"key"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`

	// RelativeDueOffset is the task due date in days from project start.
	// Negative means no due date.
	RelativeDueOffset int `json:"relative_due_offset"`

	// DependsOn lists keys of template tasks that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`

	// Required marks the task as gating project completion under the
	// required-only completion policy.
	Required bool `json:"required,omitempty"`
}

// Validate checks structural consistency of the template: unique non-empty
// task keys, no dangling DependsOn references, and an acyclic dependency
// graph. Returns a *CycleError when a dependency cycle is found.
func (t *Template) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}

	keys := make(map[string]bool, len(t.Tasks))
	for i := range t.Tasks {
		tt := &t.Tasks[i]
		if tt.Key == "" {
			return &ValidationError{Field: "tasks", Message: fmt.Sprintf("task %d has no key", i)}
		}
		if keys[tt.Key] {
			return &ValidationError{Field: "tasks", Message: fmt.Sprintf("duplicate task key %q", tt.Key)}
		}
		if tt.Title == "" {
			return &ValidationError{Field: "tasks", Message: fmt.Sprintf("task %q has no title", tt.Key)}
		}
		if tt.Priority != "" && !tt.Priority.IsValid() {
			return &ValidationError{Field: "tasks", Message: fmt.Sprintf("task %q has invalid priority %q", tt.Key, tt.Priority)}
		}
		keys[tt.Key] = true
	}

	adj := make(map[string][]string, len(t.Tasks))
	for _, tt := range t.Tasks {
		for _, dep := range tt.DependsOn {
			if !keys[dep] {
				return &ValidationError{
					Field:   "tasks",
					Message: fmt.Sprintf("task %q depends on unknown key %q", tt.Key, dep),
				}
			}
			if dep == tt.Key {
				return &CycleError{Edges: []Edge{{From: dep, To: tt.Key}}}
			}
			adj[dep] = append(adj[dep], tt.Key)
		}
	}

	if edges := FindCycle(keys, adj); len(edges) > 0 {
		return &CycleError{Edges: edges}
	}
	return nil
}

// TopologicalOrder returns template task keys ordered so that every task
// appears after all tasks it depends on. Ties are broken by authoring order,
// so the result is deterministic. Validate must have passed.
func (t *Template) TopologicalOrder() []string {
	indegree := make(map[string]int, len(t.Tasks))
	dependents := make(map[string][]string, len(t.Tasks))
	position := make(map[string]int, len(t.Tasks))

	for i, tt := range t.Tasks {
		position[tt.Key] = i
		indegree[tt.Key] = len(tt.DependsOn)
		for _, dep := range tt.DependsOn {
			dependents[dep] = append(dependents[dep], tt.Key)
		}
	}

	var ready []string
	for _, tt := range t.Tasks {
		if indegree[tt.Key] == 0 {
			ready = append(ready, tt.Key)
		}
	}
	sortByPosition(ready, position)

	order := make([]string, 0, len(t.Tasks))
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		order = append(order, key)

		released := false
		for _, dep := range dependents[key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sortByPosition(ready, position)
		}
	}
	return order
}

// Task returns the template task with the given key, or nil.
func (t *Template) Task(key string) *TemplateTask {
	for i := range t.Tasks {
		if t.Tasks[i].Key == key {
			return &t.Tasks[i]
		}
	}
	return nil
}

func sortByPosition(keys []string, position map[string]int) {
	sort.Slice(keys, func(i, j int) bool {
		return position[keys[i]] < position[keys[j]]
	})
}

// FindCycle runs a color-marking DFS over a dependency graph and returns
// the edges of the first cycle found, or nil if the graph is acyclic.
// Node visit order is sorted for deterministic reporting. Shared by template
// validation and the task dependency graph.
func FindCycle(nodes map[string]bool, adj map[string][]string) []Edge {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(nodes))
	parent := make(map[string]string, len(nodes))

	var dfs func(node string) []Edge
	dfs = func(node string) []Edge {
		color[node] = gray
		for _, next := range adj[node] {
			if color[next] == gray {
				// Reconstruct the cycle path back from node to next.
				edges := []Edge{{From: node, To: next}}
				cur := node
				for cur != next {
					edges = append(edges, Edge{From: parent[cur], To: cur})
					cur = parent[cur]
				}
				// Reverse into forward order.
				for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
					edges[i], edges[j] = edges[j], edges[i]
				}
				return edges
			}
			if color[next] == white {
				parent[next] = node
				if edges := dfs(next); edges != nil {
					return edges
				}
			}
		}
		color[node] = black
		return nil
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if edges := dfs(id); edges != nil {
				return edges
			}
		}
	}
	return nil
}
