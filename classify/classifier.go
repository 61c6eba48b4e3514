// Package classify assigns workflow categories to tasks. The production
// classifier calls an OpenAI-compatible LLM endpoint with a bounded timeout;
// a keyword fallback is available for offline use. Callers treat every
// classifier failure as recoverable: instancing degrades to the
// "uncategorized" category rather than aborting.
package classify

import (
	"context"
	"strings"

	"github.com/c360studio/practiceflow/entity"
)

// Classifier assigns a category label to a task from its title and
// description.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (string, error)
}

// Categories is the closed set of labels a classifier may return. Anything
// outside this set is normalized to "uncategorized".
var Categories = []string{
	"client_communication",
	"document_collection",
	"preparation",
	"review",
	"filing",
	"billing",
	"administrative",
}

// Normalize maps a raw classifier answer onto the closed category set.
func Normalize(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, `"'.`)
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	cleaned = strings.ReplaceAll(cleaned, "-", "_")
	for _, c := range Categories {
		if cleaned == c {
			return c
		}
	}
	return entity.CategoryUncategorized
}

// keywordRules maps category to title/description keywords, in match
// priority order.
var keywordRules = []struct {
	category string
	keywords []string
}{
	{"document_collection", []string{"document", "upload", "gather", "collect", "receipt", "w-2", "1099"}},
	{"client_communication", []string{"client", "call", "email", "meeting", "follow up", "remind"}},
	{"filing", []string{"file", "filing", "e-file", "submit", "extension"}},
	{"review", []string{"review", "approve", "sign off", "verify", "check"}},
	{"preparation", []string{"prepare", "draft", "calculate", "reconcile", "return"}},
	{"billing", []string{"invoice", "bill", "payment", "fee"}},
	{"administrative", []string{"setup", "archive", "organize", "schedule"}},
}

// StaticClassifier is a keyword-based classifier used when no LLM endpoint
// is configured.
type StaticClassifier struct{}

var _ Classifier = (*StaticClassifier)(nil)

// Classify matches the task text against keyword rules. It never fails;
// unmatched tasks get "uncategorized".
func (s *StaticClassifier) Classify(_ context.Context, title, description string) (string, error) {
	text := strings.ToLower(title + " " + description)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category, nil
			}
		}
	}
	return entity.CategoryUncategorized, nil
}
