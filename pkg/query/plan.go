package query

// JoinKind selects how a join clause is rendered.
type JoinKind int

const (
	// JoinUsing joins on a shared column name.
	JoinUsing JoinKind = iota

	// JoinOn joins with an explicit equality condition. Required for self
	// joins, where a shared column name exists on both sides and a USING
	// join would be ambiguous.
	JoinOn
)

// Join is one resolved inner-join clause.
type Join struct {
	Table     string
	Kind      JoinKind
	Column    string // set for JoinUsing
	Condition string // set for JoinOn
}

// Predicate is one parameterized filter clause. Template uses ?
// placeholders; values are always bound, never interpolated.
type Predicate struct {
	Template string
	Args     []any
}

// Sort is one ORDER BY entry.
type Sort struct {
	Column    string
	Direction string // "ASC" or "DESC"
}

// RelationQuery describes an independent sub-query that loads related rows
// for a single primary record. Optional (one-to-zero) and collection
// (one-to-many, many-to-many) relations are loaded this way instead of
// being inlined, because an inline join would require outer-join semantics
// and would inflate result cardinality.
type RelationQuery struct {
	// Name is the logical relation name the result attaches under.
	Name string

	// Table is the declared join table the sub-query searches.
	Table string

	// Join optionally attaches the related table when it differs from the
	// join table.
	Join *Join

	// FilterKey is the column filtered by the primary record's id.
	FilterKey string

	// Single limits the sub-query to at most one row (one-to-zero).
	Single bool
}

// Plan is the logical query built fresh per call and discarded after
// execution. It is dialect-independent; executors render it.
type Plan struct {
	Table   string
	Joins   []Join
	Filters []Predicate
	Sorts   []Sort
	Start   int
	Range   int
}
