package entity

import "time"

// RelationKind classifies the nature of a task relation.
type RelationKind string

const (
	// RelationBlocks means the target task cannot progress until the
	// source task is completed. Only blocks edges participate in
	// dependency-graph cycle and readiness checks.
	RelationBlocks RelationKind = "blocks"
	// RelationSubtaskOf links a sub-task to its parent.
	RelationSubtaskOf RelationKind = "subtask_of"
	// RelationRelatedTo is a free-form association.
	RelationRelatedTo RelationKind = "related_to"
)

// IsValid returns true if the kind is a known relation kind.
func (k RelationKind) IsValid() bool {
	switch k {
	case RelationBlocks, RelationSubtaskOf, RelationRelatedTo:
		return true
	default:
		return false
	}
}

// TaskRelation is a directed edge between two tasks.
type TaskRelation struct {
	ID         string       `json:"id"`
	FromTaskID string       `json:"from_task_id"`
	ToTaskID   string       `json:"to_task_id"`
	Kind       RelationKind `json:"kind"`
	ProjectID  string       `json:"project_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Edge is a bare directed edge, used in cycle reports.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}
