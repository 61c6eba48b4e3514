package workflow

import (
	"context"
	"fmt"

	"github.com/c360studio/practiceflow/entity"
)

// ReminderResult distinguishes the outcomes of a reminder dispatch.
type ReminderResult string

const (
	// ReminderDispatched means the reminder flag was newly set.
	ReminderDispatched ReminderResult = "dispatched"
	// AlreadyReminded means a reminder had already been sent. Not an
	// error; the call is idempotent.
	AlreadyReminded ReminderResult = "already_reminded"
)

// AddDocument registers a required document for a project.
func (e *Engine) AddDocument(ctx context.Context, doc *entity.DocumentRecord) (*entity.DocumentRecord, error) {
	if doc.Name == "" {
		return nil, &entity.ValidationError{Field: "name", Message: "name is required"}
	}
	if doc.ProjectID == "" {
		return nil, &entity.ValidationError{Field: "project_id", Message: "project_id is required"}
	}
	if _, err := e.store.GetProject(ctx, doc.ProjectID); err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	doc.Status = entity.DocumentStatusRequired
	doc.ReminderSent = false
	if err := e.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// TransitionDocument moves a document one stage forward. Skipping or
// reversing a stage fails with entity.ErrInvalidDocumentTransition.
func (e *Engine) TransitionDocument(ctx context.Context, documentID string, target entity.DocumentStatus) (*entity.DocumentRecord, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidDocumentTransition, target)
	}

	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if !doc.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: document %s cannot go from %s to %s",
			entity.ErrInvalidDocumentTransition, doc.ID, doc.Status, target)
	}

	doc.Status = target
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	e.logger.Info("document transitioned",
		"document_id", doc.ID,
		"to", target)
	return doc, nil
}

// MarkReceived moves a document from required to received.
func (e *Engine) MarkReceived(ctx context.Context, documentID string) (*entity.DocumentRecord, error) {
	return e.TransitionDocument(ctx, documentID, entity.DocumentStatusReceived)
}

// MarkReviewed moves a document from received to reviewed.
func (e *Engine) MarkReviewed(ctx context.Context, documentID string) (*entity.DocumentRecord, error) {
	return e.TransitionDocument(ctx, documentID, entity.DocumentStatusReviewed)
}

// MarkApproved moves a document from reviewed to approved.
func (e *Engine) MarkApproved(ctx context.Context, documentID string) (*entity.DocumentRecord, error) {
	return e.TransitionDocument(ctx, documentID, entity.DocumentStatusApproved)
}

// SendReminder marks a document as reminded. The flag is monotonic: a
// second call is a no-op returning AlreadyReminded rather than an error.
// Reminders only apply while the document is still being collected
// (required or received); later stages fail with
// entity.ErrReminderNotApplicable.
func (e *Engine) SendReminder(ctx context.Context, documentID string) (ReminderResult, *entity.DocumentRecord, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return "", nil, err
	}

	if doc.Status != entity.DocumentStatusRequired && doc.Status != entity.DocumentStatusReceived {
		return "", nil, fmt.Errorf("%w: document %s is %s",
			entity.ErrReminderNotApplicable, doc.ID, doc.Status)
	}

	if doc.ReminderSent {
		return AlreadyReminded, doc, nil
	}

	doc.ReminderSent = true
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return "", nil, err
	}

	e.logger.Info("document reminder dispatched", "document_id", doc.ID)
	return ReminderDispatched, doc, nil
}

// ProjectDocuments returns a project's document records.
func (e *Engine) ProjectDocuments(ctx context.Context, projectID string) ([]*entity.DocumentRecord, error) {
	return e.store.ListDocumentsByProject(ctx, projectID)
}
