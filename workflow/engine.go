// Package workflow implements the PracticeFlow lifecycle engine: the task
// and project state machines, the dependency graph, template instancing,
// stage aggregation, and document tracking. The engine is request-scoped
// and stateless between calls; all state lives behind the EntityStore.
package workflow

import (
	"log/slog"
	"time"

	"github.com/c360studio/practiceflow/classify"
	"github.com/c360studio/practiceflow/entity"
	"github.com/c360studio/practiceflow/storage"
)

// Engine exposes all lifecycle operations. It holds no entity state of its
// own, so concurrent callers are safe; write races are resolved by the
// store's revision checks.
type Engine struct {
	store      storage.EntityStore
	classifier classify.Classifier
	logger     *slog.Logger

	// completionPolicy controls which tasks gate a project's transition
	// to completed.
	completionPolicy entity.CompletionPolicy

	// classifyTimeout bounds each classifier call during instancing.
	classifyTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCompletionPolicy sets the project completion policy.
func WithCompletionPolicy(p entity.CompletionPolicy) EngineOption {
	return func(e *Engine) {
		e.completionPolicy = p
	}
}

// WithClassifyTimeout bounds each classifier call during instancing.
func WithClassifyTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.classifyTimeout = d
	}
}

// NewEngine creates an Engine over the given store and classifier.
func NewEngine(store storage.EntityStore, classifier classify.Classifier, opts ...EngineOption) *Engine {
	e := &Engine{
		store:            store,
		classifier:       classifier,
		logger:           slog.Default(),
		completionPolicy: entity.CompleteAll,
		classifyTimeout:  classify.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
