package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/practiceflow/entity"
)

func TestMemStore_TaskCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	task := &entity.Task{
		Title:    "Prepare return",
		Status:   entity.TaskStatusTodo,
		Priority: entity.PriorityHigh,
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected ID assigned")
	}
	if task.Revision == 0 {
		t.Fatal("expected non-zero revision")
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != task.Title {
		t.Errorf("title = %q, want %q", got.Title, task.Title)
	}

	got.Status = entity.TaskStatusInProgress
	if err := store.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Revision != 2 {
		t.Errorf("revision = %d, want 2", got.Revision)
	}

	if err := store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := store.GetTask(ctx, task.ID); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemStore_RevisionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	task := &entity.Task{Title: "Shared", Status: entity.TaskStatusTodo, Priority: entity.PriorityMedium}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	// Two readers pick up the same revision.
	first, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	second, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	first.Status = entity.TaskStatusInProgress
	if err := store.UpdateTask(ctx, first); err != nil {
		t.Fatalf("first UpdateTask: %v", err)
	}

	// The loser must see ErrConcurrentModification, never a silent overwrite.
	second.Status = entity.TaskStatusBlocked
	if err := store.UpdateTask(ctx, second); !errors.Is(err, entity.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	// Re-read and retry succeeds.
	fresh, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	fresh.Status = entity.TaskStatusBlocked
	if err := store.UpdateTask(ctx, fresh); err != nil {
		t.Fatalf("retry UpdateTask: %v", err)
	}
}

func TestMemStore_ListScoping(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	for i, projectID := range []string{"project:p1", "project:p1", "project:p2"} {
		task := &entity.Task{Title: "T", Status: entity.TaskStatusTodo, Priority: entity.PriorityLow, ProjectID: projectID}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %d: %v", i, err)
		}
	}

	p1, err := store.ListTasksByProject(ctx, "project:p1")
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	if len(p1) != 2 {
		t.Errorf("p1 tasks = %d, want 2", len(p1))
	}

	p3, err := store.ListTasksByProject(ctx, "project:p3")
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	if len(p3) != 0 {
		t.Errorf("p3 tasks = %d, want 0", len(p3))
	}
}

func TestMemStore_RelationEndpointList(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	rel := &entity.TaskRelation{
		FromTaskID: "task:a",
		ToTaskID:   "task:b",
		Kind:       entity.RelationBlocks,
		ProjectID:  "project:p1",
	}
	if err := store.CreateRelation(ctx, rel); err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}

	for _, taskID := range []string{"task:a", "task:b"} {
		rels, err := store.ListRelationsByTask(ctx, taskID)
		if err != nil {
			t.Fatalf("ListRelationsByTask(%s): %v", taskID, err)
		}
		if len(rels) != 1 {
			t.Errorf("relations for %s = %d, want 1", taskID, len(rels))
		}
	}
}

func TestMemStore_FailOn(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	boom := errors.New("boom")
	store.FailOn = func(op, id string) error {
		if op == "create_task" {
			return boom
		}
		return nil
	}

	task := &entity.Task{Title: "T", Status: entity.TaskStatusTodo, Priority: entity.PriorityLow}
	if err := store.CreateTask(ctx, task); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	project := &entity.Project{Name: "P", Status: entity.ProjectStatusPlanning}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject should not hit failpoint: %v", err)
	}
}
