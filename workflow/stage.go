package workflow

import (
	"context"
	"fmt"

	"github.com/c360studio/practiceflow/entity"
)

// Stage names, in workflow order.
const (
	StageClientIntake       = "Client Intake"
	StageDocumentCollection = "Document Collection"
	StagePreparation        = "Preparation"
	StageReview             = "Review"
	StageFiling             = "Filing"
	StageFollowUp           = "Follow-up"
)

// StageStatus reports one stage's completion predicate and progress counts.
type StageStatus struct {
	Name     string `json:"name"`
	Complete bool   `json:"complete"`

	// TasksDone/TasksTotal count the tasks relevant to this stage.
	TasksDone  int `json:"tasks_done"`
	TasksTotal int `json:"tasks_total"`

	// DocsDone/DocsTotal count the documents relevant to this stage.
	DocsDone  int `json:"docs_done"`
	DocsTotal int `json:"docs_total"`
}

// StageReport is a derived, read-only projection of project progress onto
// the fixed stage sequence. It is never written back to the project record,
// so manual status overrides cannot feed back into it.
type StageReport struct {
	ProjectID string        `json:"project_id"`
	Stage     string        `json:"stage"`
	Stages    []StageStatus `json:"stages"`
}

// ProjectStage loads a project's tasks and documents and computes its
// stage report.
func (e *Engine) ProjectStage(ctx context.Context, projectID string) (*StageReport, error) {
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, err := e.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	documents, err := e.store.ListDocumentsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project documents: %w", err)
	}
	return ComputeStage(projectID, tasks, documents), nil
}

// ComputeStage evaluates the stage predicates over the given tasks and
// documents. The project's current stage is the first stage whose predicate
// is false; when every predicate holds the project sits in the terminal
// Follow-up stage regardless of its own status field.
func ComputeStage(projectID string, tasks []*entity.Task, documents []*entity.DocumentRecord) *StageReport {
	report := &StageReport{
		ProjectID: projectID,
		Stages: []StageStatus{
			clientIntakeStage(tasks, documents),
			documentCollectionStage(documents),
			preparationStage(tasks),
			reviewStage(tasks, documents),
			filingStage(tasks, documents),
		},
	}

	report.Stage = StageFollowUp
	for _, s := range report.Stages {
		if !s.Complete {
			report.Stage = s.Name
			break
		}
	}
	report.Stages = append(report.Stages, StageStatus{
		Name:     StageFollowUp,
		Complete: report.Stage == StageFollowUp,
	})
	return report
}

// clientIntakeStage is complete once the engagement is set up: the project
// has any tasks or document requirements at all.
func clientIntakeStage(tasks []*entity.Task, documents []*entity.DocumentRecord) StageStatus {
	return StageStatus{
		Name:     StageClientIntake,
		Complete: len(tasks) > 0 || len(documents) > 0,
	}
}

// documentCollectionStage is complete when every document has at least been
// received.
func documentCollectionStage(documents []*entity.DocumentRecord) StageStatus {
	s := StageStatus{Name: StageDocumentCollection, DocsTotal: len(documents)}
	for _, d := range documents {
		if d.Status != entity.DocumentStatusRequired {
			s.DocsDone++
		}
	}
	s.Complete = s.DocsDone == s.DocsTotal
	return s
}

// preparationStage is complete when every preparation-category task is
// completed.
func preparationStage(tasks []*entity.Task) StageStatus {
	return taskCategoryStage(StagePreparation, "preparation", tasks)
}

// reviewStage is complete when every document has been reviewed (or
// approved) and every review-category task is completed.
func reviewStage(tasks []*entity.Task, documents []*entity.DocumentRecord) StageStatus {
	s := taskCategoryStage(StageReview, "review", tasks)
	s.DocsTotal = len(documents)
	for _, d := range documents {
		if d.Status == entity.DocumentStatusReviewed || d.Status == entity.DocumentStatusApproved {
			s.DocsDone++
		}
	}
	s.Complete = s.Complete && s.DocsDone == s.DocsTotal
	return s
}

// filingStage is complete when every document is approved and every
// filing-category task is completed.
func filingStage(tasks []*entity.Task, documents []*entity.DocumentRecord) StageStatus {
	s := taskCategoryStage(StageFiling, "filing", tasks)
	s.DocsTotal = len(documents)
	for _, d := range documents {
		if d.Status == entity.DocumentStatusApproved {
			s.DocsDone++
		}
	}
	s.Complete = s.Complete && s.DocsDone == s.DocsTotal
	return s
}

func taskCategoryStage(name, category string, tasks []*entity.Task) StageStatus {
	s := StageStatus{Name: name}
	for _, t := range tasks {
		if t.Category != category {
			continue
		}
		s.TasksTotal++
		if t.Status == entity.TaskStatusCompleted {
			s.TasksDone++
		}
	}
	s.Complete = s.TasksDone == s.TasksTotal
	return s
}
