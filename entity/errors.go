package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the engine. Validation errors are deterministic and
// must not be retried; ErrConcurrentModification is safe to retry after
// re-reading the entity.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidTransition is returned for an illegal task or project
	// status transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidDocumentTransition is returned when a document status
	// change skips or reverses a stage.
	ErrInvalidDocumentTransition = errors.New("invalid document status transition")

	// ErrConcurrentModification is returned when a write lost a revision
	// race. Callers may re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrReminderNotApplicable is returned when a reminder is requested
	// for a document that is already approved.
	ErrReminderNotApplicable = errors.New("reminder not applicable")

	// ErrClassificationTimeout indicates the classifier did not answer in
	// time. Instancing recovers from it internally; it never reaches API
	// callers.
	ErrClassificationTimeout = errors.New("classification timed out")
)

// ValidationError describes an invalid field on an entity.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// DependencyUnsatisfiedError is returned when a task transition is gated by
// incomplete blocker tasks.
type DependencyUnsatisfiedError struct {
	TaskID   string
	Blockers []string
}

func (e *DependencyUnsatisfiedError) Error() string {
	return fmt.Sprintf("task %s has unsatisfied dependencies: %s",
		e.TaskID, strings.Join(e.Blockers, ", "))
}

// CycleError is returned when a blocks edge set contains a cycle. Edges
// lists the offending edges so callers can report which to remove.
type CycleError struct {
	Edges []Edge
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Edges))
	for i, edge := range e.Edges {
		parts[i] = fmt.Sprintf("%s->%s", edge.From, edge.To)
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, " "))
}

// InstancingError aggregates a template instancing failure. Any partially
// persisted batch has been rolled back by the time it is returned.
type InstancingError struct {
	TemplateID string
	Step       string
	Err        error
}

func (e *InstancingError) Error() string {
	return fmt.Sprintf("instancing template %s failed at %s: %v", e.TemplateID, e.Step, e.Err)
}

func (e *InstancingError) Unwrap() error {
	return e.Err
}
