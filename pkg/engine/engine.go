// Package engine synthesizes SQL-level operations from a declarative entity
// schema: callers get create, read-with-relations, filtered search, update,
// delete and link/unlink without writing SQL or knowing join topology.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/tabular-io/tabular-engine/pkg/apperrors"
	"github.com/tabular-io/tabular-engine/pkg/query"
	"github.com/tabular-io/tabular-engine/pkg/schema"
	"github.com/tabular-io/tabular-engine/pkg/storage"
)

// SearchResult is one page of records plus the unpaginated total.
type SearchResult struct {
	Rows  []storage.Record `json:"rows"`
	Total int64            `json:"total"`
}

// Service provides schema-driven CRUD over a storage executor. Every
// operation requires an attached schema and fails fast with ErrNoSchema
// otherwise. The service keeps no mutable state beyond the attached schema,
// so concurrent calls are safe whenever the executor supports concurrent
// statement execution.
type Service interface {
	// SetSchema attaches the entity schema. Must be called before any
	// operation; the schema is read-only afterwards.
	SetSchema(s *schema.Schema)

	// Create stamps timestamp fields, generates UUID fields and persists
	// the record, returning the materialized result.
	Create(ctx context.Context, data storage.Record) (storage.Record, error)

	// Get returns a single record with its relations resolved, or nil when
	// no row matches. No relation sub-queries run on a miss.
	Get(ctx context.Context, key string, id any) (storage.Record, error)

	// Search runs the full join-resolution and query-composition pipeline.
	Search(ctx context.Context, opts query.Options) (*SearchResult, error)

	// Update stamps the updated field and persists the record, which must
	// carry its primary key.
	Update(ctx context.Context, data storage.Record) (storage.Record, error)

	// Remove deletes by primary key. Dependent rows are the storage
	// layer's cascading-delete configuration's responsibility.
	Remove(ctx context.Context, id any) error

	// Link inserts a pairing row into the {entity}_{relation} junction.
	Link(ctx context.Context, relation string, primaryID, relatedID any) error

	// Unlink removes the pairing row from the junction.
	Unlink(ctx context.Context, relation string, primaryID, relatedID any) error

	// Exists probes for a row with key = value. No joins.
	Exists(ctx context.Context, key string, value any) (bool, error)
}

type service struct {
	schema   *schema.Schema
	executor storage.Executor
	cfg      query.Config
	logger   *zap.Logger

	// Injectable for tests.
	now     func() time.Time
	newUUID func() string
}

// New creates a Service over the given executor.
func New(executor storage.Executor, cfg query.Config, logger *zap.Logger) Service {
	return &service{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newUUID:  uuid.NewString,
	}
}

func (s *service) SetSchema(sc *schema.Schema) {
	s.schema = sc
}

func (s *service) requireSchema() (*schema.Schema, error) {
	if s.schema == nil {
		return nil, apperrors.ErrNoSchema
	}
	return s.schema, nil
}

func (s *service) Create(ctx context.Context, data storage.Record) (storage.Record, error) {
	sc, err := s.requireSchema()
	if err != nil {
		return nil, err
	}

	rec := data.Clone()
	if rec == nil {
		rec = storage.Record{}
	}
	now := s.now()
	if sc.CreatedField != "" {
		rec[sc.CreatedField] = now
	}
	if sc.UpdatedField != "" {
		rec[sc.UpdatedField] = now
	}
	for _, f := range sc.UUIDFields {
		rec[f] = s.newUUID()
	}

	saved, err := s.executor.Save(ctx, sc.Name, sc.PrimaryField, rec)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", sc.Name, err)
	}
	s.logger.Debug("record created", zap.String("table", sc.Name))
	return s.materialize(saved), nil
}

func (s *service) Get(ctx context.Context, key string, id any) (storage.Record, error) {
	sc, err := s.requireSchema()
	if err != nil {
		return nil, err
	}
	if !query.ValidIdentifier(key) {
		return nil, fmt.Errorf("get %s: invalid key %q", sc.Name, key)
	}

	joins, subs := query.ResolveReadRelations(sc)
	b := s.executor.Search(sc.Name)
	for _, j := range joins {
		applyJoin(b, j)
	}
	b.Filter(key+" = ?", id)

	row, err := b.Row(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", sc.Name, err)
	}
	if row == nil {
		return nil, nil
	}

	primaryID := row[sc.PrimaryField]
	for _, rq := range subs {
		sb := s.executor.Search(rq.Table)
		if rq.Join != nil {
			applyJoin(sb, *rq.Join)
		}
		sb.Filter(rq.FilterKey+" = ?", primaryID)

		if rq.Single {
			rel, err := sb.Row(ctx)
			if err != nil {
				return nil, fmt.Errorf("get %s relation %s: %w", sc.Name, rq.Name, err)
			}
			if rel != nil {
				row[rq.Name] = rel
			}
			continue
		}

		rels, err := sb.Rows(ctx)
		if err != nil {
			return nil, fmt.Errorf("get %s relation %s: %w", sc.Name, rq.Name, err)
		}
		if rels == nil {
			rels = []storage.Record{}
		}
		row[rq.Name] = rels
	}

	return s.materialize(row), nil
}

func (s *service) Search(ctx context.Context, opts query.Options) (*SearchResult, error) {
	sc, err := s.requireSchema()
	if err != nil {
		return nil, err
	}

	plan := query.Compose(sc, opts, s.cfg)
	b := s.executor.Search(plan.Table)
	for _, j := range plan.Joins {
		applyJoin(b, j)
	}
	for _, f := range plan.Filters {
		b.Filter(f.Template, f.Args...)
	}
	for _, o := range plan.Sorts {
		b.Sort(o.Column, o.Direction)
	}
	b.Start(plan.Start)
	b.Range(plan.Range)

	rows, err := b.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", sc.Name, err)
	}
	total, err := b.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", sc.Name, err)
	}

	out := make([]storage.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.materialize(r))
	}
	s.logger.Debug("search executed",
		zap.String("table", sc.Name),
		zap.Int("rows", len(out)),
		zap.Int64("total", total))
	return &SearchResult{Rows: out, Total: total}, nil
}

func (s *service) Update(ctx context.Context, data storage.Record) (storage.Record, error) {
	sc, err := s.requireSchema()
	if err != nil {
		return nil, err
	}
	if isEmpty(data[sc.PrimaryField]) {
		return nil, fmt.Errorf("update %s: missing primary key %q", sc.Name, sc.PrimaryField)
	}

	rec := data.Clone()
	if sc.UpdatedField != "" {
		rec[sc.UpdatedField] = s.now()
	}

	saved, err := s.executor.Save(ctx, sc.Name, sc.PrimaryField, rec)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", sc.Name, err)
	}
	return s.materialize(saved), nil
}

func (s *service) Remove(ctx context.Context, id any) error {
	sc, err := s.requireSchema()
	if err != nil {
		return err
	}
	if _, err := s.executor.Delete(ctx, sc.Name, storage.Record{sc.PrimaryField: id}); err != nil {
		return fmt.Errorf("remove %s: %w", sc.Name, err)
	}
	return nil
}

func (s *service) Link(ctx context.Context, relation string, primaryID, relatedID any) error {
	sc, err := s.requireSchema()
	if err != nil {
		return err
	}
	if _, ok := sc.ManyToManyJunction(relation); !ok {
		return &apperrors.UnknownRelationError{Entity: sc.Name, Relation: relation}
	}

	pair := junctionPair(sc, relation, primaryID, relatedID)
	if _, err := s.executor.Save(ctx, sc.JunctionTable(relation), "", pair); err != nil {
		return fmt.Errorf("link %s.%s: %w", sc.Name, relation, err)
	}
	return nil
}

func (s *service) Unlink(ctx context.Context, relation string, primaryID, relatedID any) error {
	sc, err := s.requireSchema()
	if err != nil {
		return err
	}
	if _, ok := sc.ManyToManyJunction(relation); !ok {
		return &apperrors.UnknownRelationError{Entity: sc.Name, Relation: relation}
	}

	pair := junctionPair(sc, relation, primaryID, relatedID)
	if _, err := s.executor.Delete(ctx, sc.JunctionTable(relation), pair); err != nil {
		return fmt.Errorf("unlink %s.%s: %w", sc.Name, relation, err)
	}
	return nil
}

func (s *service) Exists(ctx context.Context, key string, value any) (bool, error) {
	sc, err := s.requireSchema()
	if err != nil {
		return false, err
	}
	if !query.ValidIdentifier(key) {
		return false, fmt.Errorf("exists %s: invalid key %q", sc.Name, key)
	}

	row, err := s.executor.Search(sc.Name).Filter(key+" = ?", value).Row(ctx)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", sc.Name, err)
	}
	return row != nil, nil
}

// junctionPair builds the {entity}_id / {relation}_id pairing row. Table
// names may be plural; key columns use the singular form.
func junctionPair(sc *schema.Schema, relation string, primaryID, relatedID any) storage.Record {
	return storage.Record{
		inflection.Singular(sc.Name) + "_id":  primaryID,
		inflection.Singular(relation) + "_id": relatedID,
	}
}

func applyJoin(b storage.SearchBuilder, j query.Join) {
	switch j.Kind {
	case query.JoinOn:
		b.InnerJoinOn(j.Table, j.Condition)
	default:
		b.InnerJoinUsing(j.Table, j.Column)
	}
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

var _ Service = (*service)(nil)
