package workflow

import (
	"context"
	"fmt"

	"github.com/c360studio/practiceflow/entity"
)

// AddRelation validates and persists a task relation. A blocks edge must
// connect two tasks in the same project and is checked against the
// project's dependency graph first: edges that would
// close a cycle are rejected with a *entity.CycleError and nothing is
// persisted. The returned error's Edges field names the offending edges so
// the caller can highlight them.
func (e *Engine) AddRelation(ctx context.Context, relation *entity.TaskRelation) (*entity.TaskRelation, error) {
	if !relation.Kind.IsValid() {
		return nil, &entity.ValidationError{Field: "kind", Message: fmt.Sprintf("invalid relation kind %q", relation.Kind)}
	}
	if relation.FromTaskID == relation.ToTaskID {
		return nil, &entity.CycleError{Edges: []entity.Edge{{From: relation.FromTaskID, To: relation.ToTaskID}}}
	}

	from, err := e.store.GetTask(ctx, relation.FromTaskID)
	if err != nil {
		return nil, fmt.Errorf("load from task: %w", err)
	}
	to, err := e.store.GetTask(ctx, relation.ToTaskID)
	if err != nil {
		return nil, fmt.Errorf("load to task: %w", err)
	}

	if relation.ProjectID == "" {
		relation.ProjectID = from.ProjectID
	}

	if relation.Kind == entity.RelationBlocks {
		// Dependency graphs are per project; an edge no graph will ever
		// include cannot be allowed in.
		if from.ProjectID == "" || from.ProjectID != to.ProjectID {
			return nil, &entity.ValidationError{
				Field:   "to_task_id",
				Message: fmt.Sprintf("blocks edge %s -> %s must connect tasks in the same project", relation.FromTaskID, relation.ToTaskID),
			}
		}
		graph, err := e.BuildGraph(ctx, from.ProjectID)
		if err != nil {
			return nil, err
		}
		if edges := graph.withEdge(relation.FromTaskID, relation.ToTaskID).FindCycle(); len(edges) > 0 {
			return nil, &entity.CycleError{Edges: edges}
		}
	}

	if err := e.store.CreateRelation(ctx, relation); err != nil {
		return nil, err
	}
	return relation, nil
}

// RemoveRelation deletes a relation by ID.
func (e *Engine) RemoveRelation(ctx context.Context, relationID string) error {
	return e.store.DeleteRelation(ctx, relationID)
}

// ProjectRelations returns a project's relations.
func (e *Engine) ProjectRelations(ctx context.Context, projectID string) ([]*entity.TaskRelation, error) {
	return e.store.ListRelationsByProject(ctx, projectID)
}
