package practiceapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the practice-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "practice-api",
		Factory:     NewComponent,
		Schema:      practiceAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "practiceflow",
		Description: "HTTP endpoints for projects, tasks, templates and documents",
		Version:     "0.1.0",
	})
}
