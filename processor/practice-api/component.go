// Package practiceapi provides HTTP endpoints for the project and task
// lifecycle engine: task transitions, template instancing, dependency
// management, stage reporting and document tracking.
package practiceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/practiceflow/classify"
	"github.com/c360studio/practiceflow/entity"
	"github.com/c360studio/practiceflow/storage"
	"github.com/c360studio/practiceflow/workflow"
)

// Component implements the practice-api component.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// engine is built in Start once storage is reachable. Handlers must
	// check it via getEngine and answer 503 until then.
	engine *workflow.Engine
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent constructs a practice-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if config.ClassifierTimeoutSeconds == 0 {
		config.ClassifierTimeoutSeconds = defaults.ClassifierTimeoutSeconds
	}
	if config.CompletionPolicy == "" {
		config.CompletionPolicy = defaults.CompletionPolicy
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "practice-api",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized practice-api",
		"classifier_url", c.config.ClassifierURL,
		"template_dir", c.config.TemplateDir)
	return nil
}

// Start connects storage and builds the lifecycle engine.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}

	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	store, err := storage.NewKVStore(ctx, js)
	if err != nil {
		return fmt.Errorf("create entity store: %w", err)
	}

	engine := workflow.NewEngine(store, c.buildClassifier(),
		workflow.WithLogger(c.logger),
		workflow.WithCompletionPolicy(entity.CompletionPolicy(c.config.CompletionPolicy)),
		workflow.WithClassifyTimeout(time.Duration(c.config.ClassifierTimeoutSeconds)*time.Second))

	childCtx, cancel := context.WithCancel(ctx)

	if c.config.TemplateDir != "" {
		library := workflow.NewLibrary(store, c.config.TemplateDir, c.logger)
		created, err := library.Load(ctx)
		if err != nil {
			cancel()
			return fmt.Errorf("load template library: %w", err)
		}
		c.logger.Info("template library loaded",
			"dir", c.config.TemplateDir, "created", created)
		if c.config.WatchTemplates {
			go func() {
				if err := library.Watch(childCtx, 2*time.Second); err != nil && childCtx.Err() == nil {
					c.logger.Error("template watch stopped", "error", err)
				}
			}()
		}
	}

	c.mu.Lock()
	c.engine = engine
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("practice-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.engine = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("practice-api stopped")
	return nil
}

// buildClassifier picks the classifier implementation from config. An
// endpoint URL selects the LLM classifier; otherwise keyword matching.
func (c *Component) buildClassifier() classify.Classifier {
	if c.config.ClassifierURL == "" {
		return &classify.StaticClassifier{}
	}
	return classify.NewLLMClassifier(c.config.ClassifierURL, c.config.ClassifierModel,
		classify.WithTimeout(time.Duration(c.config.ClassifierTimeoutSeconds)*time.Second),
		classify.WithLogger(c.logger))
}

// getEngine returns the engine once Start has built it.
func (c *Component) getEngine() *workflow.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "practice-api",
		Type:        "processor",
		Description: "HTTP endpoints for projects, tasks, templates and documents",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list — this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list — this component has no NATS outputs.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return practiceAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
