package practiceapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/c360studio/practiceflow/classify"
	"github.com/c360studio/practiceflow/entity"
	"github.com/c360studio/practiceflow/storage"
	"github.com/c360studio/practiceflow/workflow"
)

// setupTestComponent creates a Component wired to an in-memory store.
func setupTestComponent(t *testing.T) (*Component, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := workflow.NewEngine(store, &classify.StaticClassifier{},
		workflow.WithLogger(logger))
	return &Component{
		name:   "practice-api",
		config: DefaultConfig(),
		logger: logger,
		engine: engine,
	}, store
}

// registerHandlers wires the component's handlers into a fresh mux and
// returns a test server.
func registerHandlers(c *Component) *httptest.Server {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api/practice", mux)
	return httptest.NewServer(mux)
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestTaskEndpoints_CreateTransitionGet(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{
		Title:    "Prepare tax return",
		Priority: "high",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, data)
	}
	task := decode[entity.Task](t, data)
	if task.Status != entity.TaskStatusTodo {
		t.Errorf("status = %s, want todo", task.Status)
	}
	// The keyword classifier should file this one under preparation.
	if task.Category != "preparation" {
		t.Errorf("category = %q, want preparation", task.Category)
	}

	resp, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks/"+task.ID+"/transition",
		TransitionRequest{Status: "in_progress", Actor: "alex"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transition: expected 200, got %d: %s", resp.StatusCode, data)
	}
	task = decode[entity.Task](t, data)
	if task.Status != entity.TaskStatusInProgress {
		t.Errorf("status = %s, want in_progress", task.Status)
	}

	resp, data = doJSON(t, http.MethodGet, srv.URL+"/api/practice/tasks/"+task.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	got := decode[entity.Task](t, data)
	if got.Status != entity.TaskStatusInProgress {
		t.Errorf("persisted status = %s, want in_progress", got.Status)
	}
}

func TestTaskEndpoints_InvalidTransition(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	_, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{Title: "T"})
	task := decode[entity.Task](t, data)

	// todo -> completed skips the machine.
	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks/"+task.ID+"/transition",
		TransitionRequest{Status: "completed"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "invalid_transition" {
		t.Errorf("code = %q, want invalid_transition", errResp.Code)
	}
}

func TestTaskEndpoints_PatchStatus(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	_, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{Title: "T"})
	task := decode[entity.Task](t, data)

	// A status field in the PATCH body goes through the state machine.
	status := entity.TaskStatusInProgress
	resp, data := doJSON(t, http.MethodPatch, srv.URL+"/api/practice/tasks/"+task.ID,
		UpdateTaskRequest{Status: &status, Actor: "alex"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status: expected 200, got %d: %s", resp.StatusCode, data)
	}
	got := decode[entity.Task](t, data)
	if got.Status != entity.TaskStatusInProgress {
		t.Fatalf("status = %s, want in_progress", got.Status)
	}

	// Status and field changes land in one request.
	title := "Renamed"
	status = entity.TaskStatusReview
	resp, data = doJSON(t, http.MethodPatch, srv.URL+"/api/practice/tasks/"+task.ID,
		UpdateTaskRequest{Status: &status, TaskUpdate: workflow.TaskUpdate{Title: &title}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status+title: expected 200, got %d: %s", resp.StatusCode, data)
	}
	got = decode[entity.Task](t, data)
	if got.Status != entity.TaskStatusReview || got.Title != "Renamed" {
		t.Errorf("got status %s title %q, want review Renamed", got.Status, got.Title)
	}

	// An illegal jump is refused like the transition endpoint, and nothing
	// is written.
	_, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{Title: "Other"})
	other := decode[entity.Task](t, data)
	status = entity.TaskStatusCompleted
	resp, data = doJSON(t, http.MethodPatch, srv.URL+"/api/practice/tasks/"+other.ID,
		UpdateTaskRequest{Status: &status})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("patch illegal status: expected 409, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "invalid_transition" {
		t.Errorf("code = %q, want invalid_transition", errResp.Code)
	}
	_, data = doJSON(t, http.MethodGet, srv.URL+"/api/practice/tasks/"+other.ID, nil)
	if got := decode[entity.Task](t, data); got.Status != entity.TaskStatusTodo {
		t.Errorf("persisted status = %s, want todo", got.Status)
	}
}

func TestTaskEndpoints_DependencyConflictCarriesBlockers(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	_, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{Title: "Blocker", ProjectID: "project:p1"})
	blocker := decode[entity.Task](t, data)
	_, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{Title: "Blocked", ProjectID: "project:p1"})
	blocked := decode[entity.Task](t, data)

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/task-relations", CreateRelationRequest{
		FromTaskID: blocker.ID, ToTaskID: blocked.ID, Kind: "blocks",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add relation: expected 201, got %d: %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks/"+blocked.ID+"/transition",
		TransitionRequest{Status: "in_progress"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "dependency_unsatisfied" {
		t.Errorf("code = %q, want dependency_unsatisfied", errResp.Code)
	}
	blockers, _ := errResp.Details["blockers"].([]any)
	if len(blockers) != 1 || blockers[0] != blocker.ID {
		t.Errorf("blockers = %v, want [%s]", blockers, blocker.ID)
	}

	// Override bypasses the gate.
	resp, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks/"+blocked.ID+"/transition",
		TransitionRequest{Status: "in_progress", Override: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override: expected 200, got %d: %s", resp.StatusCode, data)
	}
}

func TestRelationEndpoints_CycleRejected(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		_, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks",
			CreateTaskRequest{Title: fmt.Sprintf("T%d", i), ProjectID: "project:p1"})
		ids = append(ids, decode[entity.Task](t, data).ID)
	}
	for _, pair := range [][2]string{{ids[0], ids[1]}, {ids[1], ids[2]}} {
		resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/task-relations",
			CreateRelationRequest{FromTaskID: pair[0], ToTaskID: pair[1], Kind: "blocks"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add relation: %d: %s", resp.StatusCode, data)
		}
	}

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/task-relations",
		CreateRelationRequest{FromTaskID: ids[2], ToTaskID: ids[0], Kind: "blocks"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "cycle_detected" {
		t.Errorf("code = %q, want cycle_detected", errResp.Code)
	}
	edges, _ := errResp.Details["edges"].([]any)
	if len(edges) != 3 {
		t.Errorf("edges = %v, want 3 entries", edges)
	}
}

func TestProjectEndpoints_FromTemplate(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/templates", entity.Template{
		Name: "Tax Return",
		Tasks: []entity.TemplateTask{
			{Key: "gather", Title: "Gather documents", RelativeDueOffset: 7},
			{Key: "prepare", Title: "Prepare return", RelativeDueOffset: 21, DependsOn: []string{"gather"}},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save template: expected 201, got %d: %s", resp.StatusCode, data)
	}
	template := decode[entity.Template](t, data)

	resp, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/projects/from-template",
		InstantiateRequest{TemplateID: template.ID, Attributes: workflow.ProjectAttributes{Name: "Acme 2025"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("instantiate: expected 201, got %d: %s", resp.StatusCode, data)
	}
	result := decode[workflow.InstancedProject](t, data)
	if len(result.Tasks) != 2 || len(result.Relations) != 1 {
		t.Fatalf("instanced %d tasks, %d relations, want 2, 1", len(result.Tasks), len(result.Relations))
	}

	resp, data = doJSON(t, http.MethodGet, srv.URL+"/api/practice/projects/"+result.Project.ID+"/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d: %s", resp.StatusCode, data)
	}
	ready := decode[struct {
		Ready []string `json:"ready"`
	}](t, data)
	if len(ready.Ready) != 2 || ready.Ready[0] != result.Tasks[0].ID {
		t.Errorf("ready = %v, want gather first", ready.Ready)
	}
}

func TestProjectEndpoints_FromTemplateUnknown(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/projects/from-template",
		InstantiateRequest{TemplateID: "template:missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "not_found" {
		t.Errorf("code = %q, want not_found", errResp.Code)
	}
}

func TestProjectEndpoints_Stage(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/projects",
		CreateProjectRequest{Name: "Engagement"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d: %s", resp.StatusCode, data)
	}
	project := decode[entity.Project](t, data)

	_, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents",
		CreateDocumentRequest{Name: "W-2", ProjectID: project.ID})
	doc := decode[entity.DocumentRecord](t, data)

	resp, data = doJSON(t, http.MethodGet, srv.URL+"/api/practice/projects/"+project.ID+"/stage", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stage: %d: %s", resp.StatusCode, data)
	}
	report := decode[workflow.StageReport](t, data)
	if report.Stage != workflow.StageDocumentCollection {
		t.Errorf("stage = %q, want %q", report.Stage, workflow.StageDocumentCollection)
	}

	resp, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents/"+doc.ID+"/status",
		DocumentStatusRequest{Status: "received"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("receive: %d: %s", resp.StatusCode, data)
	}

	_, data = doJSON(t, http.MethodGet, srv.URL+"/api/practice/projects/"+project.ID+"/stage", nil)
	report = decode[workflow.StageReport](t, data)
	if report.Stage != workflow.StageReview {
		t.Errorf("stage = %q, want %q", report.Stage, workflow.StageReview)
	}
}

func TestDocumentEndpoints_ReminderFlow(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	_, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/projects",
		CreateProjectRequest{Name: "Engagement"})
	project := decode[entity.Project](t, data)
	_, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents",
		CreateDocumentRequest{Name: "W-2", ProjectID: project.ID})
	doc := decode[entity.DocumentRecord](t, data)

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents/"+doc.ID+"/reminder", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reminder: %d: %s", resp.StatusCode, data)
	}
	reminder := decode[ReminderResponse](t, data)
	if reminder.Result != workflow.ReminderDispatched {
		t.Errorf("result = %s, want dispatched", reminder.Result)
	}

	// Repeat is idempotent.
	_, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents/"+doc.ID+"/reminder", nil)
	reminder = decode[ReminderResponse](t, data)
	if reminder.Result != workflow.AlreadyReminded {
		t.Errorf("result = %s, want already_reminded", reminder.Result)
	}

	// Past review, reminders are refused.
	for _, status := range []string{"received", "reviewed"} {
		if resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents/"+doc.ID+"/status",
			DocumentStatusRequest{Status: status}); resp.StatusCode != http.StatusOK {
			t.Fatalf("status %s: %d: %s", status, resp.StatusCode, data)
		}
	}
	resp, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents/"+doc.ID+"/reminder", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "reminder_not_applicable" {
		t.Errorf("code = %q, want reminder_not_applicable", errResp.Code)
	}
}

func TestDocumentEndpoints_InvalidTransition(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	_, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/projects",
		CreateProjectRequest{Name: "Engagement"})
	project := decode[entity.Project](t, data)
	_, data = doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents",
		CreateDocumentRequest{Name: "W-2", ProjectID: project.ID})
	doc := decode[entity.DocumentRecord](t, data)

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/documents/"+doc.ID+"/status",
		DocumentStatusRequest{Status: "approved"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, data)
	}
	errResp := decode[ErrorResponse](t, data)
	if errResp.Code != "invalid_document_transition" {
		t.Errorf("code = %q, want invalid_document_transition", errResp.Code)
	}
}

func TestEndpoints_EngineNotReady(t *testing.T) {
	c := &Component{
		name:   "practice-api",
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	srv := registerHandlers(c)
	defer srv.Close()

	resp, data := doJSON(t, http.MethodPost, srv.URL+"/api/practice/tasks", CreateTaskRequest{Title: "T"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.StatusCode, data)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/practice/tasks/task:x", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestEndpoints_MethodNotAllowed(t *testing.T) {
	c, _ := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/practice/templates", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
