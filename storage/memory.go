package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/c360studio/practiceflow/entity"
)

// MemStore is an in-memory EntityStore with the same revision semantics as
// the KV store. It backs tests and embedded single-process deployments.
type MemStore struct {
	mu        sync.RWMutex
	tasks     map[string]memEntry
	projects  map[string]memEntry
	templates map[string]memEntry
	relations map[string]memEntry
	documents map[string]memEntry

	// FailOn, when non-nil, is consulted before every write with the
	// operation name ("create_task", "update_document", ...) and entity
	// ID. Returning a non-nil error fails the write. Test hook for
	// exercising partial-failure paths.
	FailOn func(op, id string) error
}

type memEntry struct {
	data     []byte
	revision uint64
}

var _ EntityStore = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:     make(map[string]memEntry),
		projects:  make(map[string]memEntry),
		templates: make(map[string]memEntry),
		relations: make(map[string]memEntry),
		documents: make(map[string]memEntry),
	}
}

func (s *MemStore) failpoint(op, id string) error {
	if s.FailOn != nil {
		return s.FailOn(op, id)
	}
	return nil
}

func (s *MemStore) create(ctx context.Context, bucket map[string]memEntry, op, id string, v any) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.failpoint(op, id); err != nil {
		return 0, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket[id] = memEntry{data: data, revision: 1}
	return 1, nil
}

func (s *MemStore) get(ctx context.Context, bucket map[string]memEntry, id string, v any) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	entry, ok := bucket[id]
	s.mu.RUnlock()
	if !ok {
		return 0, entity.ErrNotFound
	}
	if err := json.Unmarshal(entry.data, v); err != nil {
		return 0, err
	}
	return entry.revision, nil
}

func (s *MemStore) update(ctx context.Context, bucket map[string]memEntry, op, id string, v any, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.failpoint(op, id); err != nil {
		return 0, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := bucket[id]
	if !ok {
		return 0, entity.ErrNotFound
	}
	if entry.revision != revision {
		return 0, entity.ErrConcurrentModification
	}
	next := entry.revision + 1
	bucket[id] = memEntry{data: data, revision: next}
	return next, nil
}

func (s *MemStore) delete(ctx context.Context, bucket map[string]memEntry, op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.failpoint(op, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(bucket, id)
	return nil
}

func (s *MemStore) list(ctx context.Context, bucket map[string]memEntry, collect func(data []byte, revision uint64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range bucket {
		if err := collect(entry.data, entry.revision); err != nil {
			return err
		}
	}
	return nil
}

// CreateTask creates a new task, assigning its ID and timestamps.
func (s *MemStore) CreateTask(ctx context.Context, t *entity.Task) error {
	t.ID = entity.NewID(entity.TypeTask).String()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	rev, err := s.create(ctx, s.tasks, "create_task", t.ID, t)
	if err != nil {
		return err
	}
	t.Revision = rev
	return nil
}

// GetTask retrieves a task by ID.
func (s *MemStore) GetTask(ctx context.Context, id string) (*entity.Task, error) {
	var t entity.Task
	rev, err := s.get(ctx, s.tasks, id, &t)
	if err != nil {
		return nil, err
	}
	t.Revision = rev
	return &t, nil
}

// UpdateTask writes the task back at its read revision.
func (s *MemStore) UpdateTask(ctx context.Context, t *entity.Task) error {
	t.UpdatedAt = time.Now()
	rev, err := s.update(ctx, s.tasks, "update_task", t.ID, t, t.Revision)
	if err != nil {
		return err
	}
	t.Revision = rev
	return nil
}

// DeleteTask removes a task.
func (s *MemStore) DeleteTask(ctx context.Context, id string) error {
	return s.delete(ctx, s.tasks, "delete_task", id)
}

// ListTasksByProject returns all tasks belonging to a project.
func (s *MemStore) ListTasksByProject(ctx context.Context, projectID string) ([]*entity.Task, error) {
	var tasks []*entity.Task
	err := s.list(ctx, s.tasks, func(data []byte, revision uint64) error {
		var t entity.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if t.ProjectID == projectID {
			t.Revision = revision
			tasks = append(tasks, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateProject creates a new project, assigning its ID and timestamps.
func (s *MemStore) CreateProject(ctx context.Context, p *entity.Project) error {
	p.ID = entity.NewID(entity.TypeProject).String()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	rev, err := s.create(ctx, s.projects, "create_project", p.ID, p)
	if err != nil {
		return err
	}
	p.Revision = rev
	return nil
}

// GetProject retrieves a project by ID.
func (s *MemStore) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	var p entity.Project
	rev, err := s.get(ctx, s.projects, id, &p)
	if err != nil {
		return nil, err
	}
	p.Revision = rev
	return &p, nil
}

// UpdateProject writes the project back at its read revision.
func (s *MemStore) UpdateProject(ctx context.Context, p *entity.Project) error {
	p.UpdatedAt = time.Now()
	rev, err := s.update(ctx, s.projects, "update_project", p.ID, p, p.Revision)
	if err != nil {
		return err
	}
	p.Revision = rev
	return nil
}

// DeleteProject removes a project.
func (s *MemStore) DeleteProject(ctx context.Context, id string) error {
	return s.delete(ctx, s.projects, "delete_project", id)
}

// CreateTemplate creates a new template, assigning its ID and timestamps.
func (s *MemStore) CreateTemplate(ctx context.Context, t *entity.Template) error {
	t.ID = entity.NewID(entity.TypeTemplate).String()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	rev, err := s.create(ctx, s.templates, "create_template", t.ID, t)
	if err != nil {
		return err
	}
	t.Revision = rev
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *MemStore) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	var t entity.Template
	rev, err := s.get(ctx, s.templates, id, &t)
	if err != nil {
		return nil, err
	}
	t.Revision = rev
	return &t, nil
}

// UpdateTemplate writes the template back at its read revision.
func (s *MemStore) UpdateTemplate(ctx context.Context, t *entity.Template) error {
	t.UpdatedAt = time.Now()
	rev, err := s.update(ctx, s.templates, "update_template", t.ID, t, t.Revision)
	if err != nil {
		return err
	}
	t.Revision = rev
	return nil
}

// ListTemplates returns all templates.
func (s *MemStore) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	var templates []*entity.Template
	err := s.list(ctx, s.templates, func(data []byte, revision uint64) error {
		var t entity.Template
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		t.Revision = revision
		templates = append(templates, &t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// CreateRelation creates a task relation.
func (s *MemStore) CreateRelation(ctx context.Context, r *entity.TaskRelation) error {
	r.ID = entity.NewID(entity.TypeRelation).String()
	r.CreatedAt = time.Now()
	_, err := s.create(ctx, s.relations, "create_relation", r.ID, r)
	return err
}

// DeleteRelation removes a task relation.
func (s *MemStore) DeleteRelation(ctx context.Context, id string) error {
	return s.delete(ctx, s.relations, "delete_relation", id)
}

// ListRelationsByProject returns all relations scoped to a project.
func (s *MemStore) ListRelationsByProject(ctx context.Context, projectID string) ([]*entity.TaskRelation, error) {
	var relations []*entity.TaskRelation
	err := s.list(ctx, s.relations, func(data []byte, _ uint64) error {
		var r entity.TaskRelation
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if r.ProjectID == projectID {
			relations = append(relations, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return relations, nil
}

// ListRelationsByTask returns all relations with the task at either endpoint.
func (s *MemStore) ListRelationsByTask(ctx context.Context, taskID string) ([]*entity.TaskRelation, error) {
	var relations []*entity.TaskRelation
	err := s.list(ctx, s.relations, func(data []byte, _ uint64) error {
		var r entity.TaskRelation
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if r.FromTaskID == taskID || r.ToTaskID == taskID {
			relations = append(relations, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return relations, nil
}

// CreateDocument creates a document tracking record.
func (s *MemStore) CreateDocument(ctx context.Context, d *entity.DocumentRecord) error {
	d.ID = entity.NewID(entity.TypeDocument).String()
	if d.Status == "" {
		d.Status = entity.DocumentStatusRequired
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	rev, err := s.create(ctx, s.documents, "create_document", d.ID, d)
	if err != nil {
		return err
	}
	d.Revision = rev
	return nil
}

// GetDocument retrieves a document record by ID.
func (s *MemStore) GetDocument(ctx context.Context, id string) (*entity.DocumentRecord, error) {
	var d entity.DocumentRecord
	rev, err := s.get(ctx, s.documents, id, &d)
	if err != nil {
		return nil, err
	}
	d.Revision = rev
	return &d, nil
}

// UpdateDocument writes the document back at its read revision.
func (s *MemStore) UpdateDocument(ctx context.Context, d *entity.DocumentRecord) error {
	d.UpdatedAt = time.Now()
	rev, err := s.update(ctx, s.documents, "update_document", d.ID, d, d.Revision)
	if err != nil {
		return err
	}
	d.Revision = rev
	return nil
}

// ListDocumentsByProject returns all document records for a project.
func (s *MemStore) ListDocumentsByProject(ctx context.Context, projectID string) ([]*entity.DocumentRecord, error) {
	var documents []*entity.DocumentRecord
	err := s.list(ctx, s.documents, func(data []byte, revision uint64) error {
		var d entity.DocumentRecord
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		if d.ProjectID == projectID {
			d.Revision = revision
			documents = append(documents, &d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return documents, nil
}
