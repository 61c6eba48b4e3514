// Package entity defines the PracticeFlow data model: tasks, projects,
// templates, task relations, and tracked documents, together with their
// status enumerations and the engine error taxonomy.
package entity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type identifies the kind of entity an ID refers to.
type Type string

const (
	TypeTask     Type = "task"
	TypeProject  Type = "project"
	TypeTemplate Type = "template"
	TypeRelation Type = "relation"
	TypeDocument Type = "document"
)

// ID is a typed entity identifier.
type ID struct {
	Type Type
	Key  string
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return fmt.Sprintf("%s:%s", id.Type, id.Key)
}

// ParseID parses an entity ID string into its components.
func ParseID(s string) (ID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ID{}, fmt.Errorf("invalid entity ID format: %s", s)
	}
	t := Type(parts[0])
	switch t {
	case TypeTask, TypeProject, TypeTemplate, TypeRelation, TypeDocument:
		return ID{Type: t, Key: parts[1]}, nil
	default:
		return ID{}, fmt.Errorf("unknown entity type: %s", parts[0])
	}
}

// NewID generates a new unique entity ID for the given type.
func NewID(t Type) ID {
	return ID{
		Type: t,
		Key:  uuid.New().String(),
	}
}
