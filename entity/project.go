package entity

import "time"

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusReview    ProjectStatus = "review"
	ProjectStatusFiling    ProjectStatus = "filing"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

// String returns the string representation of the status.
func (s ProjectStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known project status.
func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusReview,
		ProjectStatusFiling, ProjectStatusCompleted, ProjectStatusArchived:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s ProjectStatus) CanTransitionTo(target ProjectStatus) bool {
	switch s {
	case ProjectStatusPlanning:
		return target == ProjectStatusActive || target == ProjectStatusArchived
	case ProjectStatusActive:
		return target == ProjectStatusReview || target == ProjectStatusArchived
	case ProjectStatusReview:
		// review → active (rework loop)
		return target == ProjectStatusFiling || target == ProjectStatusActive
	case ProjectStatusFiling:
		return target == ProjectStatusCompleted || target == ProjectStatusReview
	case ProjectStatusCompleted:
		// completed → active (reopen)
		return target == ProjectStatusArchived || target == ProjectStatusActive
	case ProjectStatusArchived:
		return false // Terminal
	default:
		return false
	}
}

// CompletionPolicy controls which tasks gate a project's transition to completed.
type CompletionPolicy string

const (
	// CompleteAll requires every task in the project to be completed.
	CompleteAll CompletionPolicy = "all"
	// CompleteRequiredOnly requires only tasks marked required.
	CompleteRequiredOnly CompletionPolicy = "required_only"
)

// Project groups tasks under one client engagement.
type Project struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   ProjectStatus `json:"status"`
	ClientID string        `json:"client_id,omitempty"`

	// TemplateID records the template this project was instantiated from.
	TemplateID string `json:"template_id,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revision is the storage revision used for optimistic concurrency.
	Revision uint64 `json:"-"`
}
