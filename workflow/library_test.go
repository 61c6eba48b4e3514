package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/practiceflow/storage"
)

const taxTemplateYAML = `name: Individual Tax Return
category: tax
tasks:
  - key: gather
    title: Gather client documents
    relative_due_offset: 7
    required: true
  - key: prepare
    title: Prepare tax return
    relative_due_offset: 21
    depends_on: [gather]
    required: true
  - key: review
    title: Review prepared return
    priority: high
    depends_on: [prepare]
`

func writeTemplateFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLibrary_Load(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "tax-return.yaml", taxTemplateYAML)
	writeTemplateFile(t, dir, "nested/onboarding.yml", "name: Client Onboarding\ntasks:\n  - key: kickoff\n    title: Kickoff call\n")
	writeTemplateFile(t, dir, "notes.txt", "not a template")

	store := storage.NewMemStore()
	library := NewLibrary(store, dir, testLogger())

	created, err := library.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}

	templates, err := store.ListTemplates(context.Background())
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	byName := make(map[string]int)
	for i, tmpl := range templates {
		byName[tmpl.Name] = i
	}
	tax := templates[byName["Individual Tax Return"]]
	if len(tax.Tasks) != 3 {
		t.Fatalf("tax tasks = %d, want 3", len(tax.Tasks))
	}
	if got := tax.Tasks[2]; got.RelativeDueOffset != -1 {
		// No offset in the file means no due date.
		t.Errorf("review offset = %d, want -1", got.RelativeDueOffset)
	}
	if got := tax.Tasks[1].DependsOn; len(got) != 1 || got[0] != "gather" {
		t.Errorf("prepare depends_on = %v, want [gather]", got)
	}
}

func TestLibrary_LoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "tax-return.yaml", taxTemplateYAML)

	store := storage.NewMemStore()
	library := NewLibrary(store, dir, testLogger())
	ctx := context.Background()

	if created, err := library.Load(ctx); err != nil || created != 1 {
		t.Fatalf("first load = %d, %v", created, err)
	}
	if created, err := library.Load(ctx); err != nil || created != 0 {
		t.Fatalf("second load = %d, %v, want 0 created", created, err)
	}
}

func TestLibrary_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "good.yaml", taxTemplateYAML)
	writeTemplateFile(t, dir, "bad-yaml.yaml", "name: [unclosed")
	writeTemplateFile(t, dir, "bad-cycle.yaml", "name: Cycle\ntasks:\n  - key: a\n    title: A\n    depends_on: [b]\n  - key: b\n    title: B\n    depends_on: [a]\n")
	writeTemplateFile(t, dir, "bad-dangling.yaml", "name: Dangling\ntasks:\n  - key: a\n    title: A\n    depends_on: [ghost]\n")

	store := storage.NewMemStore()
	library := NewLibrary(store, dir, testLogger())

	created, err := library.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want only the valid template", created)
	}
}

func TestValidateTemplateDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "good.yaml", taxTemplateYAML)
	writeTemplateFile(t, dir, "bad.yaml", "name: Broken\ntasks:\n  - key: a\n    title: A\n    depends_on: [ghost]\n")

	report, err := ValidateTemplateDir(dir, testLogger())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(report.Valid) != 1 || report.Valid[0] != "Individual Tax Return" {
		t.Errorf("valid = %v, want [Individual Tax Return]", report.Valid)
	}
	if len(report.Invalid) != 1 {
		t.Errorf("invalid = %v, want one entry", report.Invalid)
	}
}

func TestLibrary_MissingDir(t *testing.T) {
	store := storage.NewMemStore()
	library := NewLibrary(store, filepath.Join(t.TempDir(), "nope"), testLogger())

	created, err := library.Load(context.Background())
	if err != nil {
		t.Fatalf("load on missing dir: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
}
