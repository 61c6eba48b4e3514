package practiceapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/practiceflow/entity"
)

// practiceAPISchema holds the configuration schema generated from Config.
var practiceAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the practice-api component.
type Config struct {
	// ClassifierURL is the base URL of an OpenAI-compatible endpoint used
	// to categorize tasks. When empty, a keyword classifier is used.
	ClassifierURL string `json:"classifier_url" schema:"type:string,description:Base URL of the classification endpoint,category:basic,default:"`

	// ClassifierModel is the model name sent to the classification endpoint.
	ClassifierModel string `json:"classifier_model" schema:"type:string,description:Classification model name,category:basic,default:"`

	// ClassifierTimeoutSeconds bounds each classification call. Zero uses
	// the classifier default.
	ClassifierTimeoutSeconds int `json:"classifier_timeout_seconds" schema:"type:int,description:Classification timeout in seconds,category:advanced,default:10"`

	// TemplateDir is an optional directory of YAML template definitions to
	// seed the template store from at startup.
	TemplateDir string `json:"template_dir" schema:"type:string,description:Directory of template definition files,category:basic,default:"`

	// WatchTemplates reloads the template directory when files change.
	WatchTemplates bool `json:"watch_templates" schema:"type:bool,description:Reload template files on change,category:advanced,default:false"`

	// CompletionPolicy selects which tasks gate project completion:
	// "all" or "required_only".
	CompletionPolicy string `json:"completion_policy" schema:"type:string,description:Project completion policy,category:basic,default:all"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ClassifierTimeoutSeconds: 10,
		CompletionPolicy:         string(entity.CompleteAll),
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.ClassifierTimeoutSeconds < 0 {
		return fmt.Errorf("classifier_timeout_seconds cannot be negative")
	}
	switch entity.CompletionPolicy(c.CompletionPolicy) {
	case "", entity.CompleteAll, entity.CompleteRequiredOnly:
		return nil
	default:
		return fmt.Errorf("unknown completion_policy %q", c.CompletionPolicy)
	}
}
