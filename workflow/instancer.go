package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/practiceflow/entity"
)

// ProjectAttributes carries the attributes of a project to be instantiated
// from a template.
type ProjectAttributes struct {
	Name      string     `json:"name"`
	ClientID  string     `json:"client_id,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
}

// InstancedProject is the result of a successful template instancing.
type InstancedProject struct {
	Project   *entity.Project        `json:"project"`
	Tasks     []*entity.Task         `json:"tasks"`
	Relations []*entity.TaskRelation `json:"relations"`
}

// Instantiate creates a project and its full task/relation batch from a
// template. The batch is atomic to callers: if any step fails after project
// creation, everything persisted so far is deleted again and a single
// *entity.InstancingError is returned. Classifier failures never abort
// instancing — affected tasks get the uncategorized category.
func (e *Engine) Instantiate(ctx context.Context, templateID string, attrs ProjectAttributes) (*InstancedProject, error) {
	template, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, &entity.InstancingError{TemplateID: templateID, Step: "load_template", Err: err}
	}

	// Save-time validation is re-run here: the template could have been
	// corrupted since, and no task may be created from a bad template.
	if err := template.Validate(); err != nil {
		return nil, &entity.InstancingError{TemplateID: templateID, Step: "validate_template", Err: err}
	}
	if attrs.Name == "" {
		attrs.Name = template.Name
	}

	start := time.Now()
	if attrs.StartDate != nil {
		start = *attrs.StartDate
	}

	project := &entity.Project{
		Name:       attrs.Name,
		Status:     entity.ProjectStatusPlanning,
		ClientID:   attrs.ClientID,
		TemplateID: template.ID,
		StartDate:  &start,
		DueDate:    attrs.DueDate,
	}
	if err := e.store.CreateProject(ctx, project); err != nil {
		return nil, &entity.InstancingError{TemplateID: templateID, Step: "create_project", Err: err}
	}

	result := &InstancedProject{Project: project}
	taskIDs := make(map[string]string, len(template.Tasks)) // template key -> task ID

	fail := func(step string, err error) (*InstancedProject, error) {
		e.rollback(project.ID, result)
		return nil, &entity.InstancingError{TemplateID: templateID, Step: step, Err: err}
	}

	// Tasks are created in topological order of depends_on, so every
	// dependency's generated ID is known before its dependents.
	for _, key := range template.TopologicalOrder() {
		if err := ctx.Err(); err != nil {
			return fail("cancelled", err)
		}

		tt := template.Task(key)
		priority := tt.Priority
		if priority == "" {
			priority = entity.PriorityMedium
		}

		task := &entity.Task{
			Title:          tt.Title,
			Description:    tt.Description,
			Status:         entity.TaskStatusTodo,
			Priority:       priority,
			Category:       e.classifyTask(ctx, tt.Title, tt.Description),
			ProjectID:      project.ID,
			TemplateTaskID: tt.Key,
			Required:       tt.Required,
		}
		if tt.RelativeDueOffset >= 0 {
			due := start.AddDate(0, 0, tt.RelativeDueOffset)
			task.DueDate = &due
		}

		if err := e.store.CreateTask(ctx, task); err != nil {
			return fail(fmt.Sprintf("create_task_%s", key), err)
		}
		result.Tasks = append(result.Tasks, task)
		taskIDs[key] = task.ID

		for _, dep := range tt.DependsOn {
			relation := &entity.TaskRelation{
				FromTaskID: taskIDs[dep],
				ToTaskID:   task.ID,
				Kind:       entity.RelationBlocks,
				ProjectID:  project.ID,
			}
			if err := e.store.CreateRelation(ctx, relation); err != nil {
				return fail(fmt.Sprintf("create_relation_%s_%s", dep, key), err)
			}
			result.Relations = append(result.Relations, relation)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail("cancelled", err)
	}

	e.logger.Info("project instantiated from template",
		"project_id", project.ID,
		"template_id", template.ID,
		"tasks", len(result.Tasks),
		"relations", len(result.Relations))
	return result, nil
}

// rollback deletes a partially persisted instancing batch: relations first,
// then tasks, then the project. The store has no multi-row transaction, so
// these are compensating deletes; failures are logged and skipped so the
// rest of the batch still gets cleaned up. Rollback runs on a fresh context
// because the original may already be cancelled.
func (e *Engine) rollback(projectID string, partial *InstancedProject) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, r := range partial.Relations {
		if err := e.store.DeleteRelation(ctx, r.ID); err != nil {
			e.logger.Error("rollback: delete relation failed", "relation_id", r.ID, "error", err)
		}
	}
	for _, t := range partial.Tasks {
		if err := e.store.DeleteTask(ctx, t.ID); err != nil {
			e.logger.Error("rollback: delete task failed", "task_id", t.ID, "error", err)
		}
	}
	if err := e.store.DeleteProject(ctx, projectID); err != nil {
		e.logger.Error("rollback: delete project failed", "project_id", projectID, "error", err)
	}
}

// classifyTask calls the classifier with a bounded timeout and degrades to
// the uncategorized category on any failure.
func (e *Engine) classifyTask(ctx context.Context, title, description string) string {
	if e.classifier == nil {
		return entity.CategoryUncategorized
	}

	cctx, cancel := context.WithTimeout(ctx, e.classifyTimeout)
	defer cancel()

	category, err := e.classifier.Classify(cctx, title, description)
	if err != nil {
		e.logger.Warn("classification failed, using uncategorized",
			"title", title, "error", err)
		return entity.CategoryUncategorized
	}
	if category == "" {
		return entity.CategoryUncategorized
	}
	return category
}

// GetTemplate loads a template by ID.
func (e *Engine) GetTemplate(ctx context.Context, templateID string) (*entity.Template, error) {
	return e.store.GetTemplate(ctx, templateID)
}

// Templates returns all stored templates.
func (e *Engine) Templates(ctx context.Context) ([]*entity.Template, error) {
	return e.store.ListTemplates(ctx)
}

// SaveTemplate validates and persists a new template. Validation at save
// time keeps corrupt depends_on graphs out of the store in the first place.
func (e *Engine) SaveTemplate(ctx context.Context, template *entity.Template) (*entity.Template, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.CreateTemplate(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}
