// Package storage provides entity persistence for PracticeFlow. The engine
// talks to storage only through the EntityStore interface; the NATS KV
// implementation is the production store and MemStore backs tests and
// embedded use.
package storage

import (
	"context"

	"github.com/c360studio/practiceflow/entity"
)

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t *entity.Task) error
	GetTask(ctx context.Context, id string) (*entity.Task, error)
	// UpdateTask writes the task back, checking its Revision. A revision
	// mismatch returns entity.ErrConcurrentModification.
	UpdateTask(ctx context.Context, t *entity.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasksByProject(ctx context.Context, projectID string) ([]*entity.Task, error)
}

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *entity.Project) error
	GetProject(ctx context.Context, id string) (*entity.Project, error)
	UpdateProject(ctx context.Context, p *entity.Project) error
	DeleteProject(ctx context.Context, id string) error
}

// TemplateStore persists templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *entity.Template) error
	GetTemplate(ctx context.Context, id string) (*entity.Template, error)
	UpdateTemplate(ctx context.Context, t *entity.Template) error
	ListTemplates(ctx context.Context) ([]*entity.Template, error)
}

// RelationStore persists task relations.
type RelationStore interface {
	CreateRelation(ctx context.Context, r *entity.TaskRelation) error
	DeleteRelation(ctx context.Context, id string) error
	ListRelationsByProject(ctx context.Context, projectID string) ([]*entity.TaskRelation, error)
	ListRelationsByTask(ctx context.Context, taskID string) ([]*entity.TaskRelation, error)
}

// DocumentStore persists document tracking records.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *entity.DocumentRecord) error
	GetDocument(ctx context.Context, id string) (*entity.DocumentRecord, error)
	UpdateDocument(ctx context.Context, d *entity.DocumentRecord) error
	ListDocumentsByProject(ctx context.Context, projectID string) ([]*entity.DocumentRecord, error)
}

// EntityStore is the full persistence gateway consumed by the engine.
type EntityStore interface {
	TaskStore
	ProjectStore
	TemplateStore
	RelationStore
	DocumentStore
}
