package practiceapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/practiceflow/entity"
	"github.com/c360studio/practiceflow/workflow"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// RegisterHTTPHandlers registers all practice-api HTTP handlers under the given
// prefix. The prefix should be the path segment without a trailing slash
// (e.g. "api/practice"). Handlers are registered as:
//
//	POST   <prefix>/tasks
//	GET    <prefix>/tasks/{id}
//	PATCH  <prefix>/tasks/{id}
//	DELETE <prefix>/tasks/{id}
//	POST   <prefix>/tasks/{id}/transition
//	POST   <prefix>/projects
//	POST   <prefix>/projects/from-template
//	GET    <prefix>/projects/{id}
//	POST   <prefix>/projects/{id}/transition
//	DELETE <prefix>/projects/{id}
//	GET    <prefix>/projects/{id}/stage
//	GET    <prefix>/projects/{id}/ready
//	GET    <prefix>/projects/{id}/tasks
//	GET    <prefix>/projects/{id}/relations
//	GET    <prefix>/projects/{id}/documents
//	GET    <prefix>/templates
//	POST   <prefix>/templates
//	POST   <prefix>/task-relations
//	DELETE <prefix>/task-relations/{id}
//	POST   <prefix>/documents
//	POST   <prefix>/documents/{id}/status
//	POST   <prefix>/documents/{id}/reminder
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	// Normalise: ensure leading slash and trailing slash.
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"tasks", c.handleTasks)
	mux.HandleFunc(prefix+"tasks/", c.routeSubpath("tasks", prefix+"tasks/", c.handleTask))
	mux.HandleFunc(prefix+"projects", c.handleProjects)
	mux.HandleFunc(prefix+"projects/", c.routeSubpath("projects", prefix+"projects/", c.handleProject))
	mux.HandleFunc(prefix+"templates", c.handleTemplates)
	mux.HandleFunc(prefix+"task-relations", c.handleRelations)
	mux.HandleFunc(prefix+"task-relations/", c.routeSubpath("task-relations", prefix+"task-relations/", c.handleRelation))
	mux.HandleFunc(prefix+"documents", c.handleDocuments)
	mux.HandleFunc(prefix+"documents/", c.routeSubpath("documents", prefix+"documents/", c.handleDocument))
}

// subpathHandler handles a request addressed to one entity. id is the first
// path segment after the collection prefix, action the optional second
// (e.g. "transition").
type subpathHandler func(w http.ResponseWriter, r *http.Request, id, action string)

// routeSubpath splits "{id}" or "{id}/{action}" out of the URL and rejects
// deeper paths. It also gates every entity handler on engine readiness.
func (c *Component) routeSubpath(endpoint, prefix string, h subpathHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix)
		id, action, _ := strings.Cut(rest, "/")
		if id == "" || strings.Contains(action, "/") {
			c.writeError(w, endpoint, entity.ErrNotFound)
			return
		}
		if c.getEngine() == nil {
			c.writeUnavailable(w, endpoint)
			return
		}
		h(w, r, id, action)
	}
}

// ----------------------------------------------------------------------------
// Tasks
// ----------------------------------------------------------------------------

// CreateTaskRequest is the request body for POST /tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Required    bool       `json:"required,omitempty"`
}

func (c *Component) handleTasks(w http.ResponseWriter, r *http.Request) {
	const endpoint = "tasks"
	if r.Method != http.MethodPost {
		c.writeMethodNotAllowed(w, endpoint)
		return
	}
	engine := c.getEngine()
	if engine == nil {
		c.writeUnavailable(w, endpoint)
		return
	}

	var req CreateTaskRequest
	if !c.decodeBody(w, r, endpoint, &req) {
		return
	}

	task, err := engine.CreateTask(r.Context(), &entity.Task{
		Title:       req.Title,
		Description: req.Description,
		Priority:    entity.Priority(req.Priority),
		ProjectID:   req.ProjectID,
		DueDate:     req.DueDate,
		Required:    req.Required,
	})
	if err != nil {
		c.writeError(w, endpoint, err)
		return
	}
	c.writeJSON(w, endpoint, http.StatusCreated, task)
}

// TransitionRequest is the request body for POST /tasks/{id}/transition.
type TransitionRequest struct {
	Status   string `json:"status"`
	Actor    string `json:"actor,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// UpdateTaskRequest is the request body for PATCH /tasks/{id}. A status
// change is routed through the task state machine; the remaining fields
// bypass it.
type UpdateTaskRequest struct {
	Status   *entity.TaskStatus `json:"status,omitempty"`
	Actor    string             `json:"actor,omitempty"`
	Override bool               `json:"override,omitempty"`
	workflow.TaskUpdate
}

func (u UpdateTaskRequest) hasFieldChanges() bool {
	return u.Title != nil || u.Description != nil || u.Priority != nil ||
		u.DueDate != nil || u.ClearDue
}

func (c *Component) handleTask(w http.ResponseWriter, r *http.Request, id, action string) {
	const endpoint = "tasks"
	engine := c.getEngine()

	switch action {
	case "":
	case "transition":
		if r.Method != http.MethodPost {
			c.writeMethodNotAllowed(w, endpoint)
			return
		}
		var req TransitionRequest
		if !c.decodeBody(w, r, endpoint, &req) {
			return
		}
		task, err := engine.Transition(r.Context(), id, entity.TaskStatus(req.Status),
			workflow.ActorContext{Actor: req.Actor, Override: req.Override})
		if err != nil {
			transitionsTotal.WithLabelValues("task", "rejected").Inc()
			c.writeError(w, endpoint, err)
			return
		}
		transitionsTotal.WithLabelValues("task", "applied").Inc()
		c.writeJSON(w, endpoint, http.StatusOK, task)
		return
	default:
		c.writeError(w, endpoint, entity.ErrNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := engine.GetTask(r.Context(), id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, task)

	case http.MethodPatch:
		var req UpdateTaskRequest
		if !c.decodeBody(w, r, endpoint, &req) {
			return
		}
		var task *entity.Task
		var err error
		if req.Status != nil {
			task, err = engine.Transition(r.Context(), id, *req.Status,
				workflow.ActorContext{Actor: req.Actor, Override: req.Override})
			if err != nil {
				transitionsTotal.WithLabelValues("task", "rejected").Inc()
				c.writeError(w, endpoint, err)
				return
			}
			transitionsTotal.WithLabelValues("task", "applied").Inc()
		}
		if req.Status == nil || req.hasFieldChanges() {
			task, err = engine.UpdateTask(r.Context(), id, req.TaskUpdate)
			if err != nil {
				c.writeError(w, endpoint, err)
				return
			}
		}
		c.writeJSON(w, endpoint, http.StatusOK, task)

	case http.MethodDelete:
		if err := engine.DeleteTask(r.Context(), id); err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeStatus(w, endpoint, http.StatusNoContent)

	default:
		c.writeMethodNotAllowed(w, endpoint)
	}
}

// ----------------------------------------------------------------------------
// Projects
// ----------------------------------------------------------------------------

// CreateProjectRequest is the request body for POST /projects.
type CreateProjectRequest struct {
	Name     string     `json:"name"`
	ClientID string     `json:"client_id,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

// InstantiateRequest is the request body for POST /projects/from-template.
type InstantiateRequest struct {
	TemplateID string                     `json:"template_id"`
	Attributes workflow.ProjectAttributes `json:"attributes"`
}

func (c *Component) handleProjects(w http.ResponseWriter, r *http.Request) {
	const endpoint = "projects"
	if r.Method != http.MethodPost {
		c.writeMethodNotAllowed(w, endpoint)
		return
	}
	engine := c.getEngine()
	if engine == nil {
		c.writeUnavailable(w, endpoint)
		return
	}

	var req CreateProjectRequest
	if !c.decodeBody(w, r, endpoint, &req) {
		return
	}
	project, err := engine.CreateProject(r.Context(), &entity.Project{
		Name:     req.Name,
		ClientID: req.ClientID,
		DueDate:  req.DueDate,
	})
	if err != nil {
		c.writeError(w, endpoint, err)
		return
	}
	c.writeJSON(w, endpoint, http.StatusCreated, project)
}

func (c *Component) handleProject(w http.ResponseWriter, r *http.Request, id, action string) {
	const endpoint = "projects"
	engine := c.getEngine()
	ctx := r.Context()

	// "from-template" occupies the id slot of the projects collection.
	if id == "from-template" && action == "" {
		if r.Method != http.MethodPost {
			c.writeMethodNotAllowed(w, endpoint)
			return
		}
		var req InstantiateRequest
		if !c.decodeBody(w, r, endpoint, &req) {
			return
		}
		result, err := engine.Instantiate(ctx, req.TemplateID, req.Attributes)
		if err != nil {
			instancingsTotal.WithLabelValues("failed").Inc()
			c.writeError(w, endpoint, err)
			return
		}
		instancingsTotal.WithLabelValues("succeeded").Inc()
		c.writeJSON(w, endpoint, http.StatusCreated, result)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			project, err := engine.GetProject(ctx, id)
			if err != nil {
				c.writeError(w, endpoint, err)
				return
			}
			c.writeJSON(w, endpoint, http.StatusOK, project)
		case http.MethodDelete:
			if err := engine.DeleteProject(ctx, id); err != nil {
				c.writeError(w, endpoint, err)
				return
			}
			c.writeStatus(w, endpoint, http.StatusNoContent)
		default:
			c.writeMethodNotAllowed(w, endpoint)
		}

	case "transition":
		if r.Method != http.MethodPost {
			c.writeMethodNotAllowed(w, endpoint)
			return
		}
		var req TransitionRequest
		if !c.decodeBody(w, r, endpoint, &req) {
			return
		}
		project, err := engine.TransitionProject(ctx, id, entity.ProjectStatus(req.Status))
		if err != nil {
			transitionsTotal.WithLabelValues("project", "rejected").Inc()
			c.writeError(w, endpoint, err)
			return
		}
		transitionsTotal.WithLabelValues("project", "applied").Inc()
		c.writeJSON(w, endpoint, http.StatusOK, project)

	case "stage":
		if !c.requireGet(w, r, endpoint) {
			return
		}
		report, err := engine.ProjectStage(ctx, id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, report)

	case "ready":
		if !c.requireGet(w, r, endpoint) {
			return
		}
		if _, err := engine.GetProject(ctx, id); err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		graph, err := engine.BuildGraph(ctx, id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, map[string]any{
			"project_id": id,
			"ready":      graph.TopologicalReady(),
		})

	case "tasks":
		if !c.requireGet(w, r, endpoint) {
			return
		}
		tasks, err := engine.ProjectTasks(ctx, id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, tasks)

	case "relations":
		if !c.requireGet(w, r, endpoint) {
			return
		}
		relations, err := engine.ProjectRelations(ctx, id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, relations)

	case "documents":
		if !c.requireGet(w, r, endpoint) {
			return
		}
		documents, err := engine.ProjectDocuments(ctx, id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, documents)

	default:
		c.writeError(w, endpoint, entity.ErrNotFound)
	}
}

// ----------------------------------------------------------------------------
// Templates
// ----------------------------------------------------------------------------

func (c *Component) handleTemplates(w http.ResponseWriter, r *http.Request) {
	const endpoint = "templates"
	engine := c.getEngine()
	if engine == nil {
		c.writeUnavailable(w, endpoint)
		return
	}

	switch r.Method {
	case http.MethodGet:
		templates, err := engine.Templates(r.Context())
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, templates)

	case http.MethodPost:
		var template entity.Template
		if !c.decodeBody(w, r, endpoint, &template) {
			return
		}
		saved, err := engine.SaveTemplate(r.Context(), &template)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusCreated, saved)

	default:
		c.writeMethodNotAllowed(w, endpoint)
	}
}

// ----------------------------------------------------------------------------
// Relations
// ----------------------------------------------------------------------------

// CreateRelationRequest is the request body for POST /task-relations.
type CreateRelationRequest struct {
	FromTaskID string `json:"from_task_id"`
	ToTaskID   string `json:"to_task_id"`
	Kind       string `json:"kind"`
}

func (c *Component) handleRelations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "task-relations"
	if r.Method != http.MethodPost {
		c.writeMethodNotAllowed(w, endpoint)
		return
	}
	engine := c.getEngine()
	if engine == nil {
		c.writeUnavailable(w, endpoint)
		return
	}

	var req CreateRelationRequest
	if !c.decodeBody(w, r, endpoint, &req) {
		return
	}
	relation, err := engine.AddRelation(r.Context(), &entity.TaskRelation{
		FromTaskID: req.FromTaskID,
		ToTaskID:   req.ToTaskID,
		Kind:       entity.RelationKind(req.Kind),
	})
	if err != nil {
		c.writeError(w, endpoint, err)
		return
	}
	c.writeJSON(w, endpoint, http.StatusCreated, relation)
}

func (c *Component) handleRelation(w http.ResponseWriter, r *http.Request, id, action string) {
	const endpoint = "task-relations"
	if action != "" {
		c.writeError(w, endpoint, entity.ErrNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		c.writeMethodNotAllowed(w, endpoint)
		return
	}
	if err := c.getEngine().RemoveRelation(r.Context(), id); err != nil {
		c.writeError(w, endpoint, err)
		return
	}
	c.writeStatus(w, endpoint, http.StatusNoContent)
}

// ----------------------------------------------------------------------------
// Documents
// ----------------------------------------------------------------------------

// CreateDocumentRequest is the request body for POST /documents.
type CreateDocumentRequest struct {
	Name      string     `json:"name"`
	ProjectID string     `json:"project_id"`
	DueDate   *time.Time `json:"due_date,omitempty"`
}

// DocumentStatusRequest is the request body for POST /documents/{id}/status.
type DocumentStatusRequest struct {
	Status string `json:"status"`
}

// ReminderResponse is the response body for POST /documents/{id}/reminder.
type ReminderResponse struct {
	Result   workflow.ReminderResult `json:"result"`
	Document *entity.DocumentRecord  `json:"document"`
}

func (c *Component) handleDocuments(w http.ResponseWriter, r *http.Request) {
	const endpoint = "documents"
	if r.Method != http.MethodPost {
		c.writeMethodNotAllowed(w, endpoint)
		return
	}
	engine := c.getEngine()
	if engine == nil {
		c.writeUnavailable(w, endpoint)
		return
	}

	var req CreateDocumentRequest
	if !c.decodeBody(w, r, endpoint, &req) {
		return
	}
	doc, err := engine.AddDocument(r.Context(), &entity.DocumentRecord{
		Name:      req.Name,
		ProjectID: req.ProjectID,
		DueDate:   req.DueDate,
	})
	if err != nil {
		c.writeError(w, endpoint, err)
		return
	}
	c.writeJSON(w, endpoint, http.StatusCreated, doc)
}

func (c *Component) handleDocument(w http.ResponseWriter, r *http.Request, id, action string) {
	const endpoint = "documents"
	engine := c.getEngine()
	ctx := r.Context()

	switch action {
	case "status":
		if r.Method != http.MethodPost {
			c.writeMethodNotAllowed(w, endpoint)
			return
		}
		var req DocumentStatusRequest
		if !c.decodeBody(w, r, endpoint, &req) {
			return
		}
		doc, err := engine.TransitionDocument(ctx, id, entity.DocumentStatus(req.Status))
		if err != nil {
			transitionsTotal.WithLabelValues("document", "rejected").Inc()
			c.writeError(w, endpoint, err)
			return
		}
		transitionsTotal.WithLabelValues("document", "applied").Inc()
		c.writeJSON(w, endpoint, http.StatusOK, doc)

	case "reminder":
		if r.Method != http.MethodPost {
			c.writeMethodNotAllowed(w, endpoint)
			return
		}
		result, doc, err := engine.SendReminder(ctx, id)
		if err != nil {
			c.writeError(w, endpoint, err)
			return
		}
		c.writeJSON(w, endpoint, http.StatusOK, ReminderResponse{Result: result, Document: doc})

	default:
		c.writeError(w, endpoint, entity.ErrNotFound)
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// ErrorResponse is the JSON error payload. Details carries the IDs a client
// needs to act on the failure (offending cycle edges, unresolved blockers).
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps domain errors onto HTTP status codes and a structured body.
func (c *Component) writeError(w http.ResponseWriter, endpoint string, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error(), Code: "internal"}

	var verr *entity.ValidationError
	var derr *entity.DependencyUnsatisfiedError
	var cerr *entity.CycleError
	var ierr *entity.InstancingError

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Code = "validation_failed"
		resp.Details = map[string]any{"field": verr.Field}
	case errors.As(err, &cerr):
		status = http.StatusUnprocessableEntity
		resp.Code = "cycle_detected"
		resp.Details = map[string]any{"edges": cerr.Edges}
	case errors.As(err, &derr):
		status = http.StatusConflict
		resp.Code = "dependency_unsatisfied"
		resp.Details = map[string]any{"task_id": derr.TaskID, "blockers": derr.Blockers}
	case errors.Is(err, entity.ErrNotFound):
		status = http.StatusNotFound
		resp.Code = "not_found"
	case errors.Is(err, entity.ErrInvalidTransition):
		status = http.StatusConflict
		resp.Code = "invalid_transition"
	case errors.Is(err, entity.ErrInvalidDocumentTransition):
		status = http.StatusConflict
		resp.Code = "invalid_document_transition"
	case errors.Is(err, entity.ErrConcurrentModification):
		status = http.StatusConflict
		resp.Code = "concurrent_modification"
	case errors.Is(err, entity.ErrReminderNotApplicable):
		status = http.StatusConflict
		resp.Code = "reminder_not_applicable"
	case errors.As(err, &ierr):
		resp.Code = "instancing_failed"
		resp.Details = map[string]any{"template_id": ierr.TemplateID, "step": ierr.Step}
	default:
		c.logger.Error("request failed", "endpoint", endpoint, "error", err)
	}

	c.writeJSON(w, endpoint, status, resp)
}

func (c *Component) writeMethodNotAllowed(w http.ResponseWriter, endpoint string) {
	c.writeJSON(w, endpoint, http.StatusMethodNotAllowed,
		ErrorResponse{Error: "method not allowed", Code: "method_not_allowed"})
}

func (c *Component) writeUnavailable(w http.ResponseWriter, endpoint string) {
	c.writeJSON(w, endpoint, http.StatusServiceUnavailable,
		ErrorResponse{Error: "storage not ready", Code: "unavailable"})
}

func (c *Component) requireGet(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if r.Method != http.MethodGet {
		c.writeMethodNotAllowed(w, endpoint)
		return false
	}
	return true
}

// decodeBody parses a size-limited JSON request body. Returns false after
// writing the error response when the body is malformed.
func (c *Component) decodeBody(w http.ResponseWriter, r *http.Request, endpoint string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		c.writeJSON(w, endpoint, http.StatusBadRequest,
			ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
		return false
	}
	return true
}

// writeJSON marshals v as JSON, writes it with the given status code and
// records the request metric.
func (c *Component) writeJSON(w http.ResponseWriter, endpoint string, status int, v any) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Debug("encode response failed", "endpoint", endpoint, "error", err)
	}
}

// writeStatus records the metric and writes a bare status code.
func (c *Component) writeStatus(w http.ResponseWriter, endpoint string, status int) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	w.WriteHeader(status)
}
