package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tabular-io/tabular-engine/pkg/schema"
)

// Span is an inclusive range filter over one column. Either bound may be
// empty. A span whose Min is empty is ignored entirely, including its Max;
// the upper bound only ever applies alongside a lower bound. That asymmetry
// is long-standing behavior callers depend on — do not "fix" it here.
type Span struct {
	Min any
	Max any
}

// Options are the recognized search parameters.
type Options struct {
	// Filter maps column names to exact-match values.
	Filter map[string]any

	// Span maps column names to inclusive ranges.
	Span map[string]Span

	// Range is the page size; 0 means the configured default.
	Range int

	// Start is the row offset; 0 means the configured default.
	Start int

	// Order maps column names to sort directions ("asc"/"desc").
	Order map[string]string

	// Q holds free-text keyword tokens matched against the schema's
	// searchable fields.
	Q []string
}

// Config carries the composer defaults. Explicit values passed in, never
// ambient state.
type Config struct {
	DefaultRange int
	DefaultStart int
	ActiveValue  any
}

// DefaultConfig returns the stock composer defaults.
func DefaultConfig() Config {
	return Config{DefaultRange: 50, DefaultStart: 0, ActiveValue: 1}
}

// identifierPattern is the safe column-name allow-list: letters, digits,
// hyphen and underscore. Keys that fail it are silently dropped, so dynamic
// identifiers from loosely-typed callers never reach the SQL while values
// stay parameter-bound.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidIdentifier reports whether name is safe to use as a column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Compose builds the full search plan for a schema: resolver joins plus
// filter, span, keyword, sort and pagination clauses.
func Compose(s *schema.Schema, opts Options, cfg Config) *Plan {
	joins, filter := ResolveSearchJoins(s, opts.Filter)

	p := &Plan{
		Table: s.Name,
		Joins: joins,
		Start: cfg.DefaultStart,
		Range: cfg.DefaultRange,
	}

	// Soft-delete visibility: filter on the active flag unless the caller
	// already did.
	if s.ActiveField != "" {
		if _, ok := filter[s.ActiveField]; !ok {
			p.Filters = append(p.Filters, Predicate{
				Template: s.ActiveField + " = ?",
				Args:     []any{cfg.ActiveValue},
			})
		}
	}

	for _, col := range sortedKeys(filter) {
		if !ValidIdentifier(col) {
			continue
		}
		p.Filters = append(p.Filters, Predicate{
			Template: col + " = ?",
			Args:     []any{filter[col]},
		})
	}

	for _, col := range sortedKeys(opts.Span) {
		if !ValidIdentifier(col) {
			continue
		}
		span := opts.Span[col]
		if emptyBound(span.Min) {
			continue
		}
		p.Filters = append(p.Filters, Predicate{
			Template: col + " >= ?",
			Args:     []any{span.Min},
		})
		if !emptyBound(span.Max) {
			p.Filters = append(p.Filters, Predicate{
				Template: col + " <= ?",
				Args:     []any{span.Max},
			})
		}
	}

	// Keyword search: per token one OR-group over every searchable field,
	// AND-ed with the rest of the filters.
	for _, kw := range opts.Q {
		if pred, ok := keywordPredicate(s.SearchableFields, kw); ok {
			p.Filters = append(p.Filters, pred)
		}
	}

	for _, col := range sortedKeys(opts.Order) {
		if !ValidIdentifier(col) {
			continue
		}
		p.Sorts = append(p.Sorts, Sort{Column: col, Direction: direction(opts.Order[col])})
	}

	if opts.Range > 0 {
		p.Range = opts.Range
	}
	if opts.Start > 0 {
		p.Start = opts.Start
	}
	return p
}

// keywordPredicate builds one case-insensitive OR-group for a keyword
// token: LOWER(field) LIKE ? across every searchable field.
func keywordPredicate(fields []string, kw string) (Predicate, bool) {
	kw = strings.TrimSpace(kw)
	if kw == "" || len(fields) == 0 {
		return Predicate{}, false
	}
	parts := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE ?", f))
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}
	return Predicate{Template: "(" + strings.Join(parts, " OR ") + ")", Args: args}, true
}

func direction(d string) string {
	if strings.EqualFold(d, "desc") || d == "-1" {
		return "DESC"
	}
	return "ASC"
}

func emptyBound(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
