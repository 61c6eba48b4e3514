// Package config provides configuration loading and management for PracticeFlow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/practiceflow/entity"
)

// Config represents the complete PracticeFlow configuration
type Config struct {
	Classifier ClassifierConfig `yaml:"classifier"`
	Templates  TemplatesConfig  `yaml:"templates"`
	NATS       NATSConfig       `yaml:"nats"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
}

// ClassifierConfig configures task categorization
type ClassifierConfig struct {
	// Endpoint is an OpenAI-compatible API endpoint. Empty selects the
	// built-in keyword classifier.
	Endpoint string `yaml:"endpoint"`
	// Model is the model name sent to the endpoint
	Model string `yaml:"model"`
	// Timeout is the maximum time to wait for a classification response
	Timeout time.Duration `yaml:"timeout"`
}

// TemplatesConfig configures the template library
type TemplatesConfig struct {
	// Dir is a directory of YAML template definitions to seed the store from
	Dir string `yaml:"dir"`
	// Watch reloads the directory when files change
	Watch bool `yaml:"watch"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// WorkflowConfig configures lifecycle behavior
type WorkflowConfig struct {
	// CompletionPolicy selects which tasks gate project completion:
	// "all" or "required_only"
	CompletionPolicy string `yaml:"completion_policy"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			Endpoint: "",
			Model:    "qwen2.5-coder:32b",
			Timeout:  10 * time.Second,
		},
		Templates: TemplatesConfig{
			Dir:   "",
			Watch: false,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Workflow: WorkflowConfig{
			CompletionPolicy: string(entity.CompleteAll),
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Classifier.Endpoint != "" && c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model is required when classifier.endpoint is set")
	}
	if c.Classifier.Timeout < 0 {
		return fmt.Errorf("classifier.timeout cannot be negative")
	}
	switch entity.CompletionPolicy(c.Workflow.CompletionPolicy) {
	case entity.CompleteAll, entity.CompleteRequiredOnly:
	default:
		return fmt.Errorf("workflow.completion_policy must be %q or %q",
			entity.CompleteAll, entity.CompleteRequiredOnly)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Classifier
	if other.Classifier.Endpoint != "" {
		c.Classifier.Endpoint = other.Classifier.Endpoint
	}
	if other.Classifier.Model != "" {
		c.Classifier.Model = other.Classifier.Model
	}
	if other.Classifier.Timeout != 0 {
		c.Classifier.Timeout = other.Classifier.Timeout
	}

	// Templates
	if other.Templates.Dir != "" {
		c.Templates.Dir = other.Templates.Dir
	}
	if other.Templates.Watch {
		c.Templates.Watch = true
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Workflow
	if other.Workflow.CompletionPolicy != "" {
		c.Workflow.CompletionPolicy = other.Workflow.CompletionPolicy
	}
}
