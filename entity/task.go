package entity

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusTodo indicates the task has not been started.
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress indicates the task is actively being worked.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReview indicates the work is done and awaiting review.
	TaskStatusReview TaskStatus = "review"
	// TaskStatusCompleted indicates the task is finished.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusBlocked indicates the task is parked on an external blocker.
	TaskStatusBlocked TaskStatus = "blocked"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview,
		TaskStatusCompleted, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	switch s {
	case TaskStatusTodo:
		return target == TaskStatusInProgress || target == TaskStatusBlocked
	case TaskStatusInProgress:
		return target == TaskStatusReview || target == TaskStatusBlocked || target == TaskStatusTodo
	case TaskStatusReview:
		return target == TaskStatusCompleted || target == TaskStatusInProgress
	case TaskStatusCompleted:
		// completed → in_progress (reopen)
		return target == TaskStatusInProgress
	case TaskStatusBlocked:
		return target == TaskStatusTodo || target == TaskStatusInProgress
	default:
		return false
	}
}

// Priority represents task urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid returns true if the priority is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Rank returns the numeric sort rank of the priority. Urgent sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// CategoryUncategorized is assigned when classification fails or times out.
const CategoryUncategorized = "uncategorized"

// Task represents a unit of work.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`

	// Category is assigned by the classifier, or "uncategorized" when
	// classification was unavailable.
	Category string `json:"category,omitempty"`

	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ProjectID is the owning project. Empty for standalone tasks.
	ProjectID string `json:"project_id,omitempty"`

	// ParentTaskID links a sub-task to its parent.
	ParentTaskID string `json:"parent_task_id,omitempty"`

	// TemplateTaskID records which template task this task was generated
	// from, for provenance. Empty for directly created tasks.
	TemplateTaskID string `json:"template_task_id,omitempty"`

	// Required marks the task as gating project completion under the
	// required-only completion policy.
	Required bool `json:"required,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ActivityLog records status transitions. Informational only.
	ActivityLog []StatusChange `json:"activity_log,omitempty"`

	// Revision is the storage revision used for optimistic concurrency.
	// Zero means the task has not been persisted yet.
	Revision uint64 `json:"-"`
}

// StatusChange records a single status transition.
type StatusChange struct {
	From      TaskStatus `json:"from"`
	To        TaskStatus `json:"to"`
	Actor     string     `json:"actor,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
