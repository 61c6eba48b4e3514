package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/practiceflow/entity"
)

// ActorContext identifies who requested a mutation and whether dependency
// gating may be overridden for manual correction.
type ActorContext struct {
	Actor    string
	Override bool
}

// Transition moves a task to a new status. It is the single writer of task
// status and completed_at: the timestamp is set on entry to completed and
// cleared on exit, in the same store write as the status change.
//
// Transitions into in_progress or completed are refused with a
// *entity.DependencyUnsatisfiedError while the task has incomplete blockers,
// unless actor.Override is set. A lost write race returns
// entity.ErrConcurrentModification; callers may re-read and retry.
func (e *Engine) Transition(ctx context.Context, taskID string, target entity.TaskStatus, actor ActorContext) (*entity.Task, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidTransition, target)
	}

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: task %s cannot go from %s to %s",
			entity.ErrInvalidTransition, task.ID, task.Status, target)
	}

	if needsDependencyCheck(target) && !actor.Override && task.ProjectID != "" {
		graph, err := e.BuildGraph(ctx, task.ProjectID)
		if err != nil {
			return nil, err
		}
		if blockers := graph.UnresolvedBlockers(task.ID); len(blockers) > 0 {
			return nil, &entity.DependencyUnsatisfiedError{TaskID: task.ID, Blockers: blockers}
		}
	}

	now := time.Now()
	old := task.Status
	task.Status = target
	// completed_at moves with the status in one write; there is never an
	// observable state where they disagree.
	if target == entity.TaskStatusCompleted {
		task.CompletedAt = &now
	} else {
		task.CompletedAt = nil
	}
	task.ActivityLog = append(task.ActivityLog, entity.StatusChange{
		From:      old,
		To:        target,
		Actor:     actor.Actor,
		Timestamp: now,
	})

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	e.logger.Info("task transitioned",
		"task_id", task.ID,
		"from", old,
		"to", target,
		"actor", actor.Actor)
	return task, nil
}

func needsDependencyCheck(target entity.TaskStatus) bool {
	return target == entity.TaskStatusInProgress || target == entity.TaskStatusCompleted
}

// TaskUpdate carries non-status field changes. Nil fields are left as-is.
// Status changes must go through Transition.
type TaskUpdate struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Priority    *entity.Priority `json:"priority,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	ClearDue    bool             `json:"clear_due_date,omitempty"`
}

// GetTask loads a task by ID.
func (e *Engine) GetTask(ctx context.Context, taskID string) (*entity.Task, error) {
	return e.store.GetTask(ctx, taskID)
}

// UpdateTask applies non-status field changes, bypassing the state machine.
func (e *Engine) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (*entity.Task, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Priority != nil {
		if !update.Priority.IsValid() {
			return nil, &entity.ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q", *update.Priority)}
		}
		task.Priority = *update.Priority
	}
	if update.DueDate != nil {
		task.DueDate = update.DueDate
	} else if update.ClearDue {
		task.DueDate = nil
	}

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CreateTask creates a standalone or project task in todo status. When no
// category is given the classifier assigns one, degrading to uncategorized
// on failure.
func (e *Engine) CreateTask(ctx context.Context, task *entity.Task) (*entity.Task, error) {
	if task.Title == "" {
		return nil, &entity.ValidationError{Field: "title", Message: "title is required"}
	}
	if task.Priority == "" {
		task.Priority = entity.PriorityMedium
	}
	if !task.Priority.IsValid() {
		return nil, &entity.ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q", task.Priority)}
	}
	task.Status = entity.TaskStatusTodo
	task.CompletedAt = nil
	if task.Category == "" {
		task.Category = e.classifyTask(ctx, task.Title, task.Description)
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task and cascades removal of every relation that
// references it at either endpoint.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	relations, err := e.store.ListRelationsByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list task relations: %w", err)
	}
	for _, r := range relations {
		if err := e.store.DeleteRelation(ctx, r.ID); err != nil {
			return fmt.Errorf("cascade delete relation %s: %w", r.ID, err)
		}
	}
	return e.store.DeleteTask(ctx, taskID)
}
