// Package sqlgen assembles SQL text for engine query plans. It is pure
// string assembly over trusted, pre-validated identifiers: executors feed
// it engine-built clauses, never raw caller input. Values travel separately
// as bound parameters.
package sqlgen

import (
	"sort"
	"strconv"
	"strings"
)

// Dialect controls placeholder and pagination rendering.
type Dialect int

const (
	Postgres Dialect = iota
	MySQL
	SQLServer
)

// placeholder returns the dialect's placeholder for 1-based position n.
func (d Dialect) placeholder(n int) string {
	switch d {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Rebind rewrites ? placeholders in a template to the dialect's positional
// style, starting from position start (1-based). Returns the rewritten
// template and the next free position.
func (d Dialect) Rebind(template string, start int) (string, int) {
	if d == MySQL {
		return template, start + strings.Count(template, "?")
	}
	var b strings.Builder
	b.Grow(len(template) + 8)
	n := start
	for _, ch := range template {
		if ch == '?' {
			b.WriteString(d.placeholder(n))
			n++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String(), n
}

type join struct {
	table     string
	column    string // USING join
	condition string // ON join
}

type filter struct {
	template string
	args     []any
}

type sortKey struct {
	column    string
	direction string
}

// Query accumulates the clauses of one search. It is the shared state
// behind every SearchBuilder implementation.
type Query struct {
	Dialect Dialect
	Table   string

	joins   []join
	filters []filter
	sorts   []sortKey
	start   int
	limit   int
}

// InnerJoinUsing adds an inner join on a shared column.
func (q *Query) InnerJoinUsing(table, column string) {
	q.joins = append(q.joins, join{table: table, column: column})
}

// InnerJoinOn adds an inner join with an explicit condition.
func (q *Query) InnerJoinOn(table, condition string) {
	q.joins = append(q.joins, join{table: table, condition: condition})
}

// Filter appends a parameterized predicate using ? placeholders.
func (q *Query) Filter(template string, args ...any) {
	q.filters = append(q.filters, filter{template: template, args: args})
}

// Sort appends an ORDER BY entry.
func (q *Query) Sort(column, direction string) {
	q.sorts = append(q.sorts, sortKey{column: column, direction: direction})
}

// Start sets the row offset.
func (q *Query) Start(n int) { q.start = n }

// Range sets the page size. Zero means unbounded.
func (q *Query) Range(n int) { q.limit = n }

// SelectSQL renders the full SELECT statement with bound args.
func (q *Query) SelectSQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.Table)
	b.WriteString(".* FROM ")
	b.WriteString(q.Table)
	q.writeJoins(&b)
	args := q.writeWhere(&b)
	q.writeOrderBy(&b)
	q.writePagination(&b)
	return b.String(), args
}

// CountSQL renders the matching COUNT statement: same joins and filters,
// no sorting or pagination window.
func (q *Query) CountSQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(q.Table)
	q.writeJoins(&b)
	args := q.writeWhere(&b)
	return b.String(), args
}

func (q *Query) writeJoins(b *strings.Builder) {
	for _, j := range q.joins {
		b.WriteString(" INNER JOIN ")
		b.WriteString(j.table)
		if j.condition != "" {
			b.WriteString(" ON ")
			b.WriteString(j.condition)
			continue
		}
		b.WriteString(" USING (")
		b.WriteString(j.column)
		b.WriteString(")")
	}
}

func (q *Query) writeWhere(b *strings.Builder) []any {
	if len(q.filters) == 0 {
		return nil
	}
	var args []any
	pos := 1
	b.WriteString(" WHERE ")
	for i, f := range q.filters {
		if i > 0 {
			b.WriteString(" AND ")
		}
		var bound string
		bound, pos = q.Dialect.Rebind(f.template, pos)
		b.WriteString(bound)
		args = append(args, f.args...)
	}
	return args
}

func (q *Query) writeOrderBy(b *strings.Builder) {
	if len(q.sorts) == 0 {
		// SQL Server cannot paginate without an ORDER BY clause.
		if q.Dialect == SQLServer && (q.limit > 0 || q.start > 0) {
			b.WriteString(" ORDER BY (SELECT NULL)")
		}
		return
	}
	b.WriteString(" ORDER BY ")
	for i, s := range q.sorts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.column)
		b.WriteString(" ")
		b.WriteString(s.direction)
	}
}

func (q *Query) writePagination(b *strings.Builder) {
	if q.limit <= 0 && q.start <= 0 {
		return
	}
	if q.Dialect == SQLServer {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.start))
		b.WriteString(" ROWS")
		if q.limit > 0 {
			b.WriteString(" FETCH NEXT ")
			b.WriteString(strconv.Itoa(q.limit))
			b.WriteString(" ROWS ONLY")
		}
		return
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	if q.start > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.start))
	}
}

// Insert renders an INSERT statement over the record's columns in sorted
// order, returning the statement and its bound args.
func Insert(d Dialect, table string, rec map[string]any) (string, []any) {
	cols := sortedColumns(rec)
	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, c := range cols {
		placeholders = append(placeholders, d.placeholder(i+1))
		args = append(args, rec[c])
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(placeholders, ", "))
	b.WriteString(")")
	return b.String(), args
}

// Update renders an UPDATE of every non-key column in the record, keyed by
// pkColumn. The primary key value binds last.
func Update(d Dialect, table, pkColumn string, rec map[string]any) (string, []any) {
	cols := sortedColumns(rec)
	var (
		sets []string
		args []any
	)
	pos := 1
	for _, c := range cols {
		if c == pkColumn {
			continue
		}
		sets = append(sets, c+" = "+d.placeholder(pos))
		args = append(args, rec[c])
		pos++
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" WHERE ")
	b.WriteString(pkColumn)
	b.WriteString(" = ")
	b.WriteString(d.placeholder(pos))
	args = append(args, rec[pkColumn])
	return b.String(), args
}

// Delete renders a DELETE matching every column in where exactly.
func Delete(d Dialect, table string, where map[string]any) (string, []any) {
	cols := sortedColumns(where)
	var (
		preds []string
		args  []any
	)
	for i, c := range cols {
		preds = append(preds, c+" = "+d.placeholder(i+1))
		args = append(args, where[c])
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(table)
	if len(preds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(preds, " AND "))
	}
	return b.String(), args
}

func sortedColumns(rec map[string]any) []string {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
