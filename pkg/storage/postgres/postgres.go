// Package postgres implements the storage executor over a pgx connection
// pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tabular-io/tabular-engine/pkg/apperrors"
	"github.com/tabular-io/tabular-engine/pkg/logging"
	"github.com/tabular-io/tabular-engine/pkg/storage"
	"github.com/tabular-io/tabular-engine/pkg/storage/sqlgen"
)

func init() {
	storage.Register(storage.DriverRegistration{
		Info: storage.DriverInfo{Name: "postgres", DisplayName: "PostgreSQL"},
		Open: func(ctx context.Context, dsn string) (storage.Executor, error) {
			return Open(ctx, dsn, zap.NewNop())
		},
	})
}

// Executor runs engine queries against PostgreSQL through a pgxpool.
type Executor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open creates a pooled executor and verifies connectivity.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Executor, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to postgres", zap.String("dsn", logging.SanitizeDSN(dsn)))
	return &Executor{pool: pool, logger: logger}, nil
}

// NewWithPool wraps an existing pool, for callers that manage their own.
func NewWithPool(pool *pgxpool.Pool, logger *zap.Logger) *Executor {
	return &Executor{pool: pool, logger: logger}
}

// Search starts a new search builder against a table.
func (e *Executor) Search(table string) storage.SearchBuilder {
	return &searchBuilder{
		exec:  e,
		query: sqlgen.Query{Dialect: sqlgen.Postgres, Table: table},
	}
}

// Save inserts or updates a record, returning the stored row.
func (e *Executor) Save(ctx context.Context, table, pkColumn string, rec storage.Record) (storage.Record, error) {
	var (
		stmt string
		args []any
	)
	if pkColumn == "" || isEmpty(rec[pkColumn]) {
		row := rec.Clone()
		delete(row, pkColumn)
		stmt, args = sqlgen.Insert(sqlgen.Postgres, table, row)
	} else {
		stmt, args = sqlgen.Update(sqlgen.Postgres, table, pkColumn, rec)
	}
	stmt += " RETURNING *"

	rows, err := e.queryRecords(ctx, stmt, args)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("save %s: %w", table, apperrors.ErrNotFound)
	}
	return rows[0], nil
}

// Delete removes rows matching every column in where.
func (e *Executor) Delete(ctx context.Context, table string, where storage.Record) (int64, error) {
	stmt, args := sqlgen.Delete(sqlgen.Postgres, table, where)
	tag, err := e.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the connection pool.
func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}

func (e *Executor) queryRecords(ctx context.Context, stmt string, args []any) ([]storage.Record, error) {
	rows, err := e.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []storage.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec := make(storage.Record, len(fields))
		for i, f := range fields {
			rec[f.Name] = values[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
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
	err := b.exec.pool.QueryRow(ctx, stmt, args...).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", b.query.Table, err)
	}
	return total, nil
}

var _ storage.Executor = (*Executor)(nil)
