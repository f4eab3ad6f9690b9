package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNoSchema = errors.New("no schema attached")
	ErrNotFound = errors.New("not found")
)

// UnknownRelationError reports a link/unlink against a relation the schema
// does not declare a junction table for. Carries the entity and relation
// names for diagnostics.
type UnknownRelationError struct {
	Entity   string
	Relation string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("entity %q has no relation %q", e.Entity, e.Relation)
}
