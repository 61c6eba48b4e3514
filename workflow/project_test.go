package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/practiceflow/entity"
)

func TestTransitionProject_Lifecycle(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	project, err := e.CreateProject(ctx, &entity.Project{Name: "Engagement"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	for _, status := range []entity.ProjectStatus{
		entity.ProjectStatusActive,
		entity.ProjectStatusReview,
		entity.ProjectStatusFiling,
		entity.ProjectStatusCompleted,
	} {
		if project, err = e.TransitionProject(ctx, project.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	if project.Status != entity.ProjectStatusCompleted {
		t.Errorf("status = %s, want completed", project.Status)
	}
}

func TestTransitionProject_Illegal(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	project, err := e.CreateProject(ctx, &entity.Project{Name: "Engagement"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	// planning cannot jump straight to completed.
	if _, err := e.TransitionProject(ctx, project.ID, entity.ProjectStatusCompleted); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.TransitionProject(ctx, project.ID, "cancelled"); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Errorf("unknown status err = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionProject_CompletionGatedOnTasks(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	project, err := e.CreateProject(ctx, &entity.Project{Name: "Engagement"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task := mustCreateTask(t, store, &entity.Task{Title: "File return", ProjectID: project.ID})

	for _, status := range []entity.ProjectStatus{
		entity.ProjectStatusActive, entity.ProjectStatusReview, entity.ProjectStatusFiling,
	} {
		if _, err := e.TransitionProject(ctx, project.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	_, err = e.TransitionProject(ctx, project.ID, entity.ProjectStatusCompleted)
	var derr *entity.DependencyUnsatisfiedError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *entity.DependencyUnsatisfiedError", err)
	}
	if len(derr.Blockers) != 1 || derr.Blockers[0] != task.ID {
		t.Errorf("blockers = %v, want [%s]", derr.Blockers, task.ID)
	}

	advance(t, e, task.ID,
		entity.TaskStatusInProgress, entity.TaskStatusReview, entity.TaskStatusCompleted)

	if _, err := e.TransitionProject(ctx, project.ID, entity.ProjectStatusCompleted); err != nil {
		t.Errorf("transition after completing tasks: %v", err)
	}
}

func TestTransitionProject_RequiredOnlyPolicy(t *testing.T) {
	e, store := newTestEngine(t, WithCompletionPolicy(entity.CompleteRequiredOnly))
	ctx := context.Background()

	project, err := e.CreateProject(ctx, &entity.Project{Name: "Engagement"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	required := mustCreateTask(t, store, &entity.Task{Title: "Prepare", ProjectID: project.ID, Required: true})
	mustCreateTask(t, store, &entity.Task{Title: "Optional cleanup", ProjectID: project.ID})

	for _, status := range []entity.ProjectStatus{
		entity.ProjectStatusActive, entity.ProjectStatusReview, entity.ProjectStatusFiling,
	} {
		if _, err := e.TransitionProject(ctx, project.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	// The open required task gates completion; the optional one does not.
	if _, err := e.TransitionProject(ctx, project.ID, entity.ProjectStatusCompleted); err == nil {
		t.Fatal("expected gate on required task")
	}

	advance(t, e, required.ID,
		entity.TaskStatusInProgress, entity.TaskStatusReview, entity.TaskStatusCompleted)

	if _, err := e.TransitionProject(ctx, project.ID, entity.ProjectStatusCompleted); err != nil {
		t.Errorf("transition with optional task open: %v", err)
	}
}

func TestDeleteProject_RefusesWhenReferenced(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	project, err := e.CreateProject(ctx, &entity.Project{Name: "Engagement"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	mustCreateTask(t, store, &entity.Task{Title: "Work", ProjectID: project.ID})

	var verr *entity.ValidationError
	if err := e.DeleteProject(ctx, project.ID); !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *entity.ValidationError", err)
	}

	// Archiving is the supported path for populated projects.
	if _, err := e.TransitionProject(ctx, project.ID, entity.ProjectStatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	archived, err := e.ArchiveProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != entity.ProjectStatusArchived {
		t.Errorf("status = %s, want archived", archived.Status)
	}
}

func TestDeleteProject_Empty(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	project, err := e.CreateProject(ctx, &entity.Project{Name: "Empty"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := e.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetProject(ctx, project.ID); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}
