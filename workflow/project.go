package workflow

import (
	"context"
	"fmt"

	"github.com/c360studio/practiceflow/entity"
)

// CreateProject creates a project in planning status.
func (e *Engine) CreateProject(ctx context.Context, p *entity.Project) (*entity.Project, error) {
	if p.Name == "" {
		return nil, &entity.ValidationError{Field: "name", Message: "name is required"}
	}
	p.Status = entity.ProjectStatusPlanning
	if err := e.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject loads a project by ID.
func (e *Engine) GetProject(ctx context.Context, projectID string) (*entity.Project, error) {
	return e.store.GetProject(ctx, projectID)
}

// ProjectTasks returns a project's tasks.
func (e *Engine) ProjectTasks(ctx context.Context, projectID string) ([]*entity.Task, error) {
	return e.store.ListTasksByProject(ctx, projectID)
}

// TransitionProject moves a project to a new status. The transition to
// completed requires the project's tasks to be completed — all of them, or
// only the required ones, depending on the engine's completion policy.
func (e *Engine) TransitionProject(ctx context.Context, projectID string, target entity.ProjectStatus) (*entity.Project, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidTransition, target)
	}

	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if !project.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: project %s cannot go from %s to %s",
			entity.ErrInvalidTransition, project.ID, project.Status, target)
	}

	if target == entity.ProjectStatusCompleted {
		incomplete, err := e.incompleteTasks(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		if len(incomplete) > 0 {
			return nil, &entity.DependencyUnsatisfiedError{TaskID: project.ID, Blockers: incomplete}
		}
	}

	old := project.Status
	project.Status = target
	if err := e.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}

	e.logger.Info("project transitioned",
		"project_id", project.ID,
		"from", old,
		"to", target)
	return project, nil
}

// incompleteTasks returns the IDs of tasks that still gate project
// completion under the configured policy.
func (e *Engine) incompleteTasks(ctx context.Context, projectID string) ([]string, error) {
	tasks, err := e.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}

	var incomplete []string
	for _, t := range tasks {
		if t.Status == entity.TaskStatusCompleted {
			continue
		}
		if e.completionPolicy == entity.CompleteRequiredOnly && !t.Required {
			continue
		}
		incomplete = append(incomplete, t.ID)
	}
	return incomplete, nil
}

// ArchiveProject moves a project to archived. Projects with tasks or
// documents are archived, never hard-deleted.
func (e *Engine) ArchiveProject(ctx context.Context, projectID string) (*entity.Project, error) {
	return e.TransitionProject(ctx, projectID, entity.ProjectStatusArchived)
}

// DeleteProject hard-deletes a project only when nothing references it;
// otherwise it refuses and the caller should archive instead.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	tasks, err := e.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list project tasks: %w", err)
	}
	documents, err := e.store.ListDocumentsByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list project documents: %w", err)
	}
	if len(tasks) > 0 || len(documents) > 0 {
		return &entity.ValidationError{
			Field:   "project",
			Message: fmt.Sprintf("project %s has tasks or documents; archive it instead", projectID),
		}
	}
	return e.store.DeleteProject(ctx, projectID)
}
