// Package stdsql implements the storage executor over database/sql, so any
// registered driver (SQL Server, MySQL) can back the engine.
package stdsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tabular-io/tabular-engine/pkg/apperrors"
	"github.com/tabular-io/tabular-engine/pkg/storage"
	"github.com/tabular-io/tabular-engine/pkg/storage/sqlgen"
)

// Executor runs engine queries through a database/sql handle.
type Executor struct {
	db      *sql.DB
	dialect sqlgen.Dialect
	logger  *zap.Logger
}

// New wraps an open database handle. The caller picks the dialect matching
// the driver behind the handle.
func New(db *sql.DB, dialect sqlgen.Dialect, logger *zap.Logger) *Executor {
	return &Executor{db: db, dialect: dialect, logger: logger}
}

// Search starts a new search builder against a table.
func (e *Executor) Search(table string) storage.SearchBuilder {
	return &searchBuilder{
		exec:  e,
		query: sqlgen.Query{Dialect: e.dialect, Table: table},
	}
}

// Save inserts or updates a record. database/sql has no portable RETURNING,
// so the stored row is re-read by primary key after the write; insert-only
// saves without a usable key return the written record as-is.
func (e *Executor) Save(ctx context.Context, table, pkColumn string, rec storage.Record) (storage.Record, error) {
	insert := pkColumn == "" || isEmpty(rec[pkColumn])
	var (
		stmt string
		args []any
	)
	if insert {
		row := rec.Clone()
		delete(row, pkColumn)
		stmt, args = sqlgen.Insert(e.dialect, table, row)
	} else {
		stmt, args = sqlgen.Update(e.dialect, table, pkColumn, rec)
	}

	res, err := e.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", table, err)
	}

	pk := rec[pkColumn]
	if insert && pkColumn != "" {
		// Not every driver reports generated keys; fall back to the record
		// we wrote when this one does not.
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			pk = id
		}
	}
	if pkColumn == "" || isEmpty(pk) {
		return rec.Clone(), nil
	}

	stored, err := e.Search(table).Filter(pkColumn+" = ?", pk).Row(ctx)
	if err != nil {
		return nil, fmt.Errorf("save %s: reread: %w", table, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("save %s: %w", table, apperrors.ErrNotFound)
	}
	return stored, nil
}

// Delete removes rows matching every column in where.
func (e *Executor) Delete(ctx context.Context, table string, where storage.Record) (int64, error) {
	stmt, args := sqlgen.Delete(e.dialect, table, where)
	res, err := e.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s: rows affected: %w", table, err)
	}
	return affected, nil
}

// Close closes the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

func (e *Executor) queryRecords(ctx context.Context, stmt string, args []any) ([]storage.Record, error) {
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("get column types: %w", err)
	}

	var out []storage.Record
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := make(storage.Record, len(columns))
		for i, col := range columns {
			val := values[i]
			// Text columns arrive as []byte from several drivers.
			if b, ok := val.([]byte); ok && isStringType(types[i].DatabaseTypeName()) {
				val = string(b)
			}
			rec[col] = val
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isStringType(typeName string) bool {
	switch strings.ToUpper(typeName) {
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT", "JSON", "JSONB", "UUID", "UNIQUEIDENTIFIER":
		return true
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// searchBuilder renders and runs one search. Single-use.
type searchBuilder struct {
	exec  *Executor
	query sqlgen.Query
}

func (b *searchBuilder) InnerJoinUsing(table, column string) storage.SearchBuilder {
	b.query.InnerJoinUsing(table, column)
	return b
}

func (b *searchBuilder) InnerJoinOn(table, condition string) storage.SearchBuilder {
	b.query.InnerJoinOn(table, condition)
	return b
}

func (b *searchBuilder) Filter(template string, args ...any) storage.SearchBuilder {
	b.query.Filter(template, args...)
	return b
}

func (b *searchBuilder) Sort(column, direction string) storage.SearchBuilder {
	b.query.Sort(column, direction)
	return b
}

func (b *searchBuilder) Start(n int) storage.SearchBuilder {
	b.query.Start(n)
	return b
}

func (b *searchBuilder) Range(n int) storage.SearchBuilder {
	b.query.Range(n)
	return b
}

func (b *searchBuilder) Row(ctx context.Context) (storage.Record, error) {
	b.query.Range(1)
	stmt, args := b.query.SelectSQL()
	rows, err := b.exec.queryRecords(ctx, stmt, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (b *searchBuilder) Rows(ctx context.Context) ([]storage.Record, error) {
	stmt, args := b.query.SelectSQL()
	return b.exec.queryRecords(ctx, stmt, args)
}

func (b *searchBuilder) Total(ctx context.Context) (int64, error) {
	stmt, args := b.query.CountSQL()
	var total int64
	if err := b.exec.db.QueryRowContext(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", b.query.Table, err)
	}
	return total, nil
}

var _ storage.Executor = (*Executor)(nil)
