package storage

import "context"

// Record is a raw row keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SearchBuilder composes and runs one search against a table. Builders are
// single-use; clause methods return the receiver for chaining.
type SearchBuilder interface {
	// InnerJoinUsing adds an inner join on a shared column name.
	InnerJoinUsing(table, column string) SearchBuilder

	// InnerJoinOn adds an inner join with an explicit condition. The
	// condition is trusted engine-built SQL, never caller input.
	InnerJoinOn(table, condition string) SearchBuilder

	// Filter appends a parameterized predicate. The template uses ?
	// placeholders which the executor rewrites for its dialect; args are
	// always bound, never interpolated.
	Filter(template string, args ...any) SearchBuilder

	// Sort appends an ORDER BY entry.
	Sort(column, direction string) SearchBuilder

	// Start sets the row offset.
	Start(n int) SearchBuilder

	// Range sets the page size.
	Range(n int) SearchBuilder

	// Row returns the first matching record, or nil when nothing matches.
	Row(ctx context.Context) (Record, error)

	// Rows returns all matching records within the pagination window.
	Rows(ctx context.Context) ([]Record, error)

	// Total counts matching rows, honoring joins and filters but ignoring
	// the pagination window.
	Total(ctx context.Context) (int64, error)
}

// Executor is the execution collaborator the engine drives. Implementations
// must support concurrent parameterized statement execution; the engine
// adds no locking of its own, performs no retries, and surfaces executor
// failures unchanged.
type Executor interface {
	// Search starts a new search against a table.
	Search(table string) SearchBuilder

	// Save inserts rec when its pkColumn value is absent and updates the
	// row with that primary key otherwise, returning the stored record.
	// pkColumn may be empty for insert-only tables such as junctions.
	Save(ctx context.Context, table, pkColumn string, rec Record) (Record, error)

	// Delete removes rows matching every column in where exactly and
	// reports how many were removed.
	Delete(ctx context.Context, table string, where Record) (int64, error)

	// Close releases the underlying connections.
	Close() error
}
