package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/practiceflow/entity"
)

// Bucket names for each entity type.
const (
	BucketTasks     = "PRACTICEFLOW_TASKS"
	BucketProjects  = "PRACTICEFLOW_PROJECTS"
	BucketTemplates = "PRACTICEFLOW_TEMPLATES"
	BucketRelations = "PRACTICEFLOW_RELATIONS"
	BucketDocuments = "PRACTICEFLOW_DOCUMENTS"
)

// KVStore implements EntityStore on NATS JetStream KV, one bucket per
// entity type. Updates are revision-checked so concurrent writers cannot
// silently overwrite each other.
type KVStore struct {
	tasks     jetstream.KeyValue
	projects  jetstream.KeyValue
	templates jetstream.KeyValue
	relations jetstream.KeyValue
	documents jetstream.KeyValue
}

var _ EntityStore = (*KVStore)(nil)

// NewKVStore creates a KVStore with the given JetStream context, creating
// the KV buckets if they don't exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	s := &KVStore{}
	for _, b := range []struct {
		name string
		kv   *jetstream.KeyValue
	}{
		{BucketTasks, &s.tasks},
		{BucketProjects, &s.projects},
		{BucketTemplates, &s.templates},
		{BucketRelations, &s.relations},
		{BucketDocuments, &s.documents},
	} {
		kv, err := getOrCreateBucket(ctx, js, b.name)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", strings.ToLower(b.name), err)
		}
		*b.kv = kv
	}
	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("PracticeFlow %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// kvKey extracts the KV key from a typed entity ID string, verifying the
// entity type. Colons are not legal in NATS KV keys, so only the uuid part
// is used as the key.
func kvKey(id string, want entity.Type) (string, error) {
	parsed, err := entity.ParseID(id)
	if err != nil {
		return "", err
	}
	if parsed.Type != want {
		return "", fmt.Errorf("invalid entity type: expected %s, got %s", want, parsed.Type)
	}
	return parsed.Key, nil
}

func createJSON(ctx context.Context, kv jetstream.KeyValue, key string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal entity: %w", err)
	}
	rev, err := kv.Create(ctx, key, data)
	if err != nil {
		return 0, fmt.Errorf("store entity: %w", err)
	}
	return rev, nil
}

func getJSON[T any](ctx context.Context, kv jetstream.KeyValue, key string) (*T, uint64, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, entity.ErrNotFound
		}
		return nil, 0, fmt.Errorf("get entity: %w", err)
	}
	var v T
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, 0, fmt.Errorf("unmarshal entity: %w", err)
	}
	return &v, entry.Revision(), nil
}

// updateJSON writes v at the expected revision. A revision mismatch maps to
// entity.ErrConcurrentModification so callers can re-read and retry.
func updateJSON(ctx context.Context, kv jetstream.KeyValue, key string, v any, revision uint64) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal entity: %w", err)
	}
	rev, err := kv.Update(ctx, key, data, revision)
	if err != nil {
		if isRevisionMismatch(err) {
			return 0, entity.ErrConcurrentModification
		}
		if isNotFound(err) {
			return 0, entity.ErrNotFound
		}
		return 0, fmt.Errorf("update entity: %w", err)
	}
	return rev, nil
}

func listJSON[T any](ctx context.Context, kv jetstream.KeyValue) ([]*T, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	out := make([]*T, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var v T
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

// CreateTask creates a new task, assigning its ID and timestamps.
func (s *KVStore) CreateTask(ctx context.Context, t *entity.Task) error {
	id := entity.NewID(entity.TypeTask)
	t.ID = id.String()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	rev, err := createJSON(ctx, s.tasks, id.Key, t)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	t.Revision = rev
	return nil
}

// GetTask retrieves a task by ID.
func (s *KVStore) GetTask(ctx context.Context, id string) (*entity.Task, error) {
	key, err := kvKey(id, entity.TypeTask)
	if err != nil {
		return nil, err
	}
	t, rev, err := getJSON[entity.Task](ctx, s.tasks, key)
	if err != nil {
		return nil, err
	}
	t.Revision = rev
	return t, nil
}

// UpdateTask writes the task back at its read revision.
func (s *KVStore) UpdateTask(ctx context.Context, t *entity.Task) error {
	key, err := kvKey(t.ID, entity.TypeTask)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now()
	rev, err := updateJSON(ctx, s.tasks, key, t, t.Revision)
	if err != nil {
		return err
	}
	t.Revision = rev
	return nil
}

// DeleteTask removes a task.
func (s *KVStore) DeleteTask(ctx context.Context, id string) error {
	key, err := kvKey(id, entity.TypeTask)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListTasksByProject returns all tasks belonging to a project.
func (s *KVStore) ListTasksByProject(ctx context.Context, projectID string) ([]*entity.Task, error) {
	all, err := listJSON[entity.Task](ctx, s.tasks)
	if err != nil {
		return nil, err
	}
	tasks := make([]*entity.Task, 0, len(all))
	for _, t := range all {
		if t.ProjectID == projectID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// CreateProject creates a new project, assigning its ID and timestamps.
func (s *KVStore) CreateProject(ctx context.Context, p *entity.Project) error {
	id := entity.NewID(entity.TypeProject)
	p.ID = id.String()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	rev, err := createJSON(ctx, s.projects, id.Key, p)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	p.Revision = rev
	return nil
}

// GetProject retrieves a project by ID.
func (s *KVStore) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	key, err := kvKey(id, entity.TypeProject)
	if err != nil {
		return nil, err
	}
	p, rev, err := getJSON[entity.Project](ctx, s.projects, key)
	if err != nil {
		return nil, err
	}
	p.Revision = rev
	return p, nil
}

// UpdateProject writes the project back at its read revision.
func (s *KVStore) UpdateProject(ctx context.Context, p *entity.Project) error {
	key, err := kvKey(p.ID, entity.TypeProject)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	rev, err := updateJSON(ctx, s.projects, key, p, p.Revision)
	if err != nil {
		return err
	}
	p.Revision = rev
	return nil
}

// DeleteProject removes a project. Callers are expected to archive projects
// that have tasks or documents instead of deleting them.
func (s *KVStore) DeleteProject(ctx context.Context, id string) error {
	key, err := kvKey(id, entity.TypeProject)
	if err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// CreateTemplate creates a new template, assigning its ID and timestamps.
func (s *KVStore) CreateTemplate(ctx context.Context, t *entity.Template) error {
	id := entity.NewID(entity.TypeTemplate)
	t.ID = id.String()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	rev, err := createJSON(ctx, s.templates, id.Key, t)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	t.Revision = rev
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *KVStore) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	key, err := kvKey(id, entity.TypeTemplate)
	if err != nil {
		return nil, err
	}
	t, rev, err := getJSON[entity.Template](ctx, s.templates, key)
	if err != nil {
		return nil, err
	}
	t.Revision = rev
	return t, nil
}

// UpdateTemplate writes the template back at its read revision.
func (s *KVStore) UpdateTemplate(ctx context.Context, t *entity.Template) error {
	key, err := kvKey(t.ID, entity.TypeTemplate)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now()
	rev, err := updateJSON(ctx, s.templates, key, t, t.Revision)
	if err != nil {
		return err
	}
	t.Revision = rev
	return nil
}

// ListTemplates returns all templates.
func (s *KVStore) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	return listJSON[entity.Template](ctx, s.templates)
}

// CreateRelation creates a task relation. Relations are immutable; there is
// no update path.
func (s *KVStore) CreateRelation(ctx context.Context, r *entity.TaskRelation) error {
	id := entity.NewID(entity.TypeRelation)
	r.ID = id.String()
	r.CreatedAt = time.Now()

	if _, err := createJSON(ctx, s.relations, id.Key, r); err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	return nil
}

// DeleteRelation removes a task relation.
func (s *KVStore) DeleteRelation(ctx context.Context, id string) error {
	key, err := kvKey(id, entity.TypeRelation)
	if err != nil {
		return err
	}
	if err := s.relations.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	return nil
}

// ListRelationsByProject returns all relations scoped to a project.
func (s *KVStore) ListRelationsByProject(ctx context.Context, projectID string) ([]*entity.TaskRelation, error) {
	all, err := listJSON[entity.TaskRelation](ctx, s.relations)
	if err != nil {
		return nil, err
	}
	relations := make([]*entity.TaskRelation, 0, len(all))
	for _, r := range all {
		if r.ProjectID == projectID {
			relations = append(relations, r)
		}
	}
	return relations, nil
}

// ListRelationsByTask returns all relations with the task at either endpoint.
func (s *KVStore) ListRelationsByTask(ctx context.Context, taskID string) ([]*entity.TaskRelation, error) {
	all, err := listJSON[entity.TaskRelation](ctx, s.relations)
	if err != nil {
		return nil, err
	}
	relations := make([]*entity.TaskRelation, 0, len(all))
	for _, r := range all {
		if r.FromTaskID == taskID || r.ToTaskID == taskID {
			relations = append(relations, r)
		}
	}
	return relations, nil
}

// CreateDocument creates a document tracking record.
func (s *KVStore) CreateDocument(ctx context.Context, d *entity.DocumentRecord) error {
	id := entity.NewID(entity.TypeDocument)
	d.ID = id.String()
	if d.Status == "" {
		d.Status = entity.DocumentStatusRequired
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	rev, err := createJSON(ctx, s.documents, id.Key, d)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	d.Revision = rev
	return nil
}

// GetDocument retrieves a document record by ID.
func (s *KVStore) GetDocument(ctx context.Context, id string) (*entity.DocumentRecord, error) {
	key, err := kvKey(id, entity.TypeDocument)
	if err != nil {
		return nil, err
	}
	d, rev, err := getJSON[entity.DocumentRecord](ctx, s.documents, key)
	if err != nil {
		return nil, err
	}
	d.Revision = rev
	return d, nil
}

// UpdateDocument writes the document back at its read revision.
func (s *KVStore) UpdateDocument(ctx context.Context, d *entity.DocumentRecord) error {
	key, err := kvKey(d.ID, entity.TypeDocument)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now()
	rev, err := updateJSON(ctx, s.documents, key, d, d.Revision)
	if err != nil {
		return err
	}
	d.Revision = rev
	return nil
}

// ListDocumentsByProject returns all document records for a project.
func (s *KVStore) ListDocumentsByProject(ctx context.Context, projectID string) ([]*entity.DocumentRecord, error) {
	all, err := listJSON[entity.DocumentRecord](ctx, s.documents)
	if err != nil {
		return nil, err
	}
	documents := make([]*entity.DocumentRecord, 0, len(all))
	for _, d := range all {
		if d.ProjectID == projectID {
			documents = append(documents, d)
		}
	}
	return documents, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}

// isRevisionMismatch checks if an error indicates a lost revision race.
func isRevisionMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "wrong last sequence")
}
