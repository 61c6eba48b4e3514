package entity

import "time"

// DocumentStatus represents the collection state of a required document.
// Transitions are strictly forward: required → received → reviewed → approved.
type DocumentStatus string

const (
	DocumentStatusRequired DocumentStatus = "required"
	DocumentStatusReceived DocumentStatus = "received"
	DocumentStatusReviewed DocumentStatus = "reviewed"
	DocumentStatusApproved DocumentStatus = "approved"
)

// String returns the string representation of the status.
func (s DocumentStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known document status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusRequired, DocumentStatusReceived,
		DocumentStatusReviewed, DocumentStatusApproved:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target
// status. Stages may not be skipped or reversed.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	switch s {
	case DocumentStatusRequired:
		return target == DocumentStatusReceived
	case DocumentStatusReceived:
		return target == DocumentStatusReviewed
	case DocumentStatusReviewed:
		return target == DocumentStatusApproved
	case DocumentStatusApproved:
		return false // Terminal
	default:
		return false
	}
}

// DocumentRecord tracks one required document for a project.
type DocumentRecord struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Status    DocumentStatus `json:"status"`
	DueDate   *time.Time     `json:"due_date,omitempty"`

	// ReminderSent is monotonic: once true it never reverts.
	ReminderSent bool `json:"reminder_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revision is the storage revision used for optimistic concurrency.
	Revision uint64 `json:"-"`
}
