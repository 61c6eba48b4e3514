package workflow

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/practiceflow/entity"
)

// templateFilePattern matches template definition files under the library
// directory, at any depth.
const templateFilePattern = "**/*.{yaml,yml}"

// templateFile is the on-disk YAML shape of a template definition.
type templateFile struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Tasks    []struct {
		Key               string   `yaml:"key"`
		Title             string   `yaml:"title"`
		Description       string   `yaml:"description"`
		Priority          string   `yaml:"priority"`
		RelativeDueOffset *int     `yaml:"relative_due_offset"`
		DependsOn         []string `yaml:"depends_on"`
		Required          bool     `yaml:"required"`
	} `yaml:"tasks"`
}

// templateStore is the subset of storage the library needs.
type templateStore interface {
	CreateTemplate(ctx context.Context, t *entity.Template) error
	ListTemplates(ctx context.Context) ([]*entity.Template, error)
}

// Library seeds the template store from YAML definition files on disk and
// can watch the directory for changes. Files that fail to parse or
// validate are skipped with a warning; they never take the library down.
type Library struct {
	store  templateStore
	dir    string
	logger *slog.Logger
}

// NewLibrary creates a Library over the given directory.
func NewLibrary(store templateStore, dir string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{store: store, dir: dir, logger: logger}
}

// Load parses every template file under the library directory and creates
// store templates for names not yet present. Existing templates are left
// alone: templates are versioned by replacement, not mutated in place.
// Returns the number of templates created.
func (l *Library) Load(ctx context.Context) (int, error) {
	files, err := l.matchFiles()
	if err != nil {
		return 0, err
	}

	existing, err := l.store.ListTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.Name] = true
	}

	created := 0
	for _, path := range files {
		template, err := l.parseFile(path)
		if err != nil {
			l.logger.Warn("skipping template file", "path", path, "error", err)
			continue
		}
		if known[template.Name] {
			continue
		}
		if err := l.store.CreateTemplate(ctx, template); err != nil {
			return created, fmt.Errorf("create template %q: %w", template.Name, err)
		}
		known[template.Name] = true
		created++
		l.logger.Info("template loaded", "name", template.Name, "path", path, "tasks", len(template.Tasks))
	}
	return created, nil
}

// matchFiles returns template definition files sorted by path.
func (l *Library) matchFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		ok, err := doublestar.Match(templateFilePattern, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan template dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// parseFile reads and validates one template definition.
func (l *Library) parseFile(path string) (*entity.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	template := &entity.Template{
		Name:     tf.Name,
		Category: tf.Category,
	}
	for _, t := range tf.Tasks {
		offset := -1 // no due date unless the file sets one
		if t.RelativeDueOffset != nil {
			offset = *t.RelativeDueOffset
		}
		template.Tasks = append(template.Tasks, entity.TemplateTask{
			Key:               t.Key,
			Title:             t.Title,
			Description:       t.Description,
			Priority:          entity.Priority(t.Priority),
			RelativeDueOffset: offset,
			DependsOn:         t.DependsOn,
			Required:          t.Required,
		})
	}

	if err := template.Validate(); err != nil {
		return nil, err
	}
	return template, nil
}

// DirReport summarizes a validation pass over a template directory.
type DirReport struct {
	// Valid lists the names of templates that parsed and validated.
	Valid []string
	// Invalid maps file paths to their parse or validation error.
	Invalid map[string]error
}

// ValidateTemplateDir parses every template file under dir without touching
// storage, for offline checking of a template library.
func ValidateTemplateDir(dir string, logger *slog.Logger) (*DirReport, error) {
	l := NewLibrary(nil, dir, logger)
	files, err := l.matchFiles()
	if err != nil {
		return nil, err
	}

	report := &DirReport{Invalid: make(map[string]error)}
	for _, path := range files {
		template, err := l.parseFile(path)
		if err != nil {
			report.Invalid[path] = err
			continue
		}
		report.Valid = append(report.Valid, template.Name)
	}
	return report, nil
}

// Watch reloads the library when files under the directory change. Events
// are debounced so a burst of writes triggers one reload. Blocks until the
// context is cancelled.
func (l *Library) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("template watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := l.Load(ctx); err != nil {
				l.logger.Error("template reload failed", "error", err)
			}
		}
	}
}
