package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabular-io/tabular-engine/pkg/apperrors"
	"github.com/tabular-io/tabular-engine/pkg/query"
	"github.com/tabular-io/tabular-engine/pkg/schema"
	"github.com/tabular-io/tabular-engine/pkg/storage"
)

type mockFilter struct {
	template string
	args     []any
}

type mockBuilder struct {
	table   string
	joins   []string
	filters []mockFilter
	sorts   []string
	start   int
	limit   int

	row      storage.Record
	rows     []storage.Record
	total    int64
	rowErr   error
	rowsErr  error
	totalErr error
}

func (b *mockBuilder) InnerJoinUsing(table, column string) storage.SearchBuilder {
	b.joins = append(b.joins, fmt.Sprintf("%s USING (%s)", table, column))
	return b
}

func (b *mockBuilder) InnerJoinOn(table, condition string) storage.SearchBuilder {
	b.joins = append(b.joins, fmt.Sprintf("%s ON %s", table, condition))
	return b
}

func (b *mockBuilder) Filter(template string, args ...any) storage.SearchBuilder {
	b.filters = append(b.filters, mockFilter{template: template, args: args})
	return b
}

func (b *mockBuilder) Sort(column, direction string) storage.SearchBuilder {
	b.sorts = append(b.sorts, column+" "+direction)
	return b
}

func (b *mockBuilder) Start(n int) storage.SearchBuilder {
	b.start = n
	return b
}

func (b *mockBuilder) Range(n int) storage.SearchBuilder {
	b.limit = n
	return b
}

func (b *mockBuilder) Row(context.Context) (storage.Record, error) {
	return b.row, b.rowErr
}

func (b *mockBuilder) Rows(context.Context) ([]storage.Record, error) {
	return b.rows, b.rowsErr
}

func (b *mockBuilder) Total(context.Context) (int64, error) {
	return b.total, b.totalErr
}

type saveCall struct {
	table    string
	pkColumn string
	rec      storage.Record
}

type deleteCall struct {
	table string
	where storage.Record
}

type mockExecutor struct {
	rowByTable  map[string]storage.Record
	rowsByTable map[string][]storage.Record
	total       int64

	builders []*mockBuilder

	saves     []saveCall
	saveErr   error
	deletes   []deleteCall
	deleteErr error
}

func (m *mockExecutor) Search(table string) storage.SearchBuilder {
	b := &mockBuilder{
		table: table,
		row:   m.rowByTable[table],
		rows:  m.rowsByTable[table],
		total: m.total,
	}
	m.builders = append(m.builders, b)
	return b
}

func (m *mockExecutor) Save(_ context.Context, table, pkColumn string, rec storage.Record) (storage.Record, error) {
	m.saves = append(m.saves, saveCall{table: table, pkColumn: pkColumn, rec: rec.Clone()})
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	return rec.Clone(), nil
}

func (m *mockExecutor) Delete(_ context.Context, table string, where storage.Record) (int64, error) {
	m.deletes = append(m.deletes, deleteCall{table: table, where: where.Clone()})
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return 1, nil
}

func (m *mockExecutor) Close() error { return nil }

var _ storage.Executor = (*mockExecutor)(nil)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(m *mockExecutor) *service {
	n := 0
	return &service{
		executor: m,
		cfg:      query.DefaultConfig(),
		logger:   zap.NewNop(),
		now:      func() time.Time { return fixedTime },
		newUUID: func() string {
			n++
			return fmt.Sprintf("uuid-%d", n)
		},
	}
}

func fullSchema() *schema.Schema {
	return &schema.Schema{
		Name:             "post",
		PrimaryField:     "id",
		CreatedField:     "created",
		UpdatedField:     "updated",
		ActiveField:      "active",
		UUIDFields:       []string{"token"},
		JSONFields:       []string{"meta"},
		SearchableFields: []string{"title", "body"},
		Relations: map[schema.Cardinality]map[string]schema.Relation{
			schema.OneToOne: {
				"post_author": {RelatedEntity: "authors", LocalKey: "post_id", ForeignKey: "author_id"},
			},
			schema.OneToZero: {
				"post_cover": {RelatedEntity: "covers", LocalKey: "cover_id", ForeignKey: "post_id"},
			},
			schema.OneToMany: {
				"post_comment": {RelatedEntity: "comments", LocalKey: "comment_id", ForeignKey: "post_id"},
			},
			schema.ManyToMany: {
				"post_tag": {RelatedEntity: "tags", LocalKey: "tag_id", ForeignKey: "post_id"},
			},
		},
	}
}

func TestOperationsRequireSchema(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&mockExecutor{})

	_, err := svc.Create(ctx, storage.Record{"title": "x"})
	assert.ErrorIs(t, err, apperrors.ErrNoSchema)

	_, err = svc.Get(ctx, "id", 1)
	assert.ErrorIs(t, err, apperrors.ErrNoSchema)

	_, err = svc.Search(ctx, query.Options{})
	assert.ErrorIs(t, err, apperrors.ErrNoSchema)

	_, err = svc.Update(ctx, storage.Record{"id": 1})
	assert.ErrorIs(t, err, apperrors.ErrNoSchema)

	assert.ErrorIs(t, svc.Remove(ctx, 1), apperrors.ErrNoSchema)
	assert.ErrorIs(t, svc.Link(ctx, "tag", 1, 2), apperrors.ErrNoSchema)
	assert.ErrorIs(t, svc.Unlink(ctx, "tag", 1, 2), apperrors.ErrNoSchema)

	_, err = svc.Exists(ctx, "id", 1)
	assert.ErrorIs(t, err, apperrors.ErrNoSchema)
}

func TestCreate(t *testing.T) {
	m := &mockExecutor{}
	svc := newTestService(m)
	svc.SetSchema(fullSchema())

	data := storage.Record{"title": "hello"}
	rec, err := svc.Create(context.Background(), data)
	require.NoError(t, err)

	require.Len(t, m.saves, 1)
	saved := m.saves[0]
	assert.Equal(t, "post", saved.table)
	assert.Equal(t, "id", saved.pkColumn)
	assert.Equal(t, "hello", saved.rec["title"])
	assert.Equal(t, fixedTime, saved.rec["created"])
	assert.Equal(t, fixedTime, saved.rec["updated"])
	assert.Equal(t, "uuid-1", saved.rec["token"])

	// Declared JSON fields always materialize, defaulting to an empty
	// structure when the stored row has no value.
	assert.Equal(t, map[string]any{}, rec["meta"])

	// The caller's map is never mutated.
	assert.Equal(t, storage.Record{"title": "hello"}, data)
}

func TestCreateDistinctUUIDsPerField(t *testing.T) {
	m := &mockExecutor{}
	svc := newTestService(m)
	s := fullSchema()
	s.UUIDFields = []string{"token", "share_key"}
	svc.SetSchema(s)

	_, err := svc.Create(context.Background(), storage.Record{})
	require.NoError(t, err)

	rec := m.saves[0].rec
	assert.NotEqual(t, rec["token"], rec["share_key"])
}

func TestCreateExecutorError(t *testing.T) {
	boom := errors.New("connection reset")
	svc := newTestService(&mockExecutor{saveErr: boom})
	svc.SetSchema(fullSchema())

	_, err := svc.Create(context.Background(), storage.Record{"title": "x"})
	assert.ErrorIs(t, err, boom)
}

func TestUpdate(t *testing.T) {
	t.Run("stamps the updated field only", func(t *testing.T) {
		m := &mockExecutor{}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		_, err := svc.Update(context.Background(), storage.Record{"id": 9, "title": "new"})
		require.NoError(t, err)

		require.Len(t, m.saves, 1)
		saved := m.saves[0]
		assert.Equal(t, "post", saved.table)
		assert.Equal(t, "id", saved.pkColumn)
		assert.Equal(t, fixedTime, saved.rec["updated"])
		assert.NotContains(t, saved.rec, "created")
	})

	t.Run("rejects a record without its primary key", func(t *testing.T) {
		m := &mockExecutor{}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		_, err := svc.Update(context.Background(), storage.Record{"title": "new"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing primary key")
		assert.Empty(t, m.saves)
	})
}

func TestGet(t *testing.T) {
	m := &mockExecutor{
		rowByTable: map[string]storage.Record{
			"post":       {"id": 1, "title": "hello", "meta": `{"a":1}`},
			"post_cover": {"cover_id": 4, "url": "img.png"},
		},
		rowsByTable: map[string][]storage.Record{
			"post_comment": {{"comment_id": 2, "body": "hi"}},
		},
	}
	svc := newTestService(m)
	svc.SetSchema(fullSchema())

	rec, err := svc.Get(context.Background(), "id", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)

	// Primary query: one-to-one joins inline, filtered by the given key.
	require.Len(t, m.builders, 4)
	main := m.builders[0]
	assert.Equal(t, "post", main.table)
	assert.Equal(t, []string{"post_author USING (post_id)", "authors USING (author_id)"}, main.joins)
	require.Len(t, main.filters, 1)
	assert.Equal(t, "id = ?", main.filters[0].template)
	assert.Equal(t, []any{1}, main.filters[0].args)

	// Sub-queries filter the join table by the primary record's id and
	// attach the related table when it differs.
	cover := m.builders[1]
	assert.Equal(t, "post_cover", cover.table)
	assert.Equal(t, []string{"covers USING (cover_id)"}, cover.joins)
	assert.Equal(t, "post_id = ?", cover.filters[0].template)
	assert.Equal(t, []any{1}, cover.filters[0].args)

	assert.Equal(t, "post_comment", m.builders[2].table)
	assert.Equal(t, "post_tag", m.builders[3].table)

	assert.Equal(t, storage.Record{"cover_id": 4, "url": "img.png"}, rec["post_cover"])
	assert.Equal(t, []storage.Record{{"comment_id": 2, "body": "hi"}}, rec["post_comment"])

	// Collections default to empty, never nil.
	assert.Equal(t, []storage.Record{}, rec["post_tag"])

	// JSON fields decode on the way out.
	assert.Equal(t, map[string]any{"a": float64(1)}, rec["meta"])
}

func TestGetMiss(t *testing.T) {
	m := &mockExecutor{}
	svc := newTestService(m)
	svc.SetSchema(fullSchema())

	rec, err := svc.Get(context.Background(), "id", 404)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// No relation sub-queries run on a miss.
	assert.Len(t, m.builders, 1)
}

func TestGetMissingOptionalRelation(t *testing.T) {
	m := &mockExecutor{
		rowByTable: map[string]storage.Record{
			"post": {"id": 1, "title": "hello"},
		},
	}
	svc := newTestService(m)
	svc.SetSchema(fullSchema())

	rec, err := svc.Get(context.Background(), "id", 1)
	require.NoError(t, err)

	// A one-to-zero relation with no row attaches nothing.
	assert.NotContains(t, rec, "post_cover")
}

func TestGetInvalidKey(t *testing.T) {
	svc := newTestService(&mockExecutor{})
	svc.SetSchema(fullSchema())

	_, err := svc.Get(context.Background(), "id; DROP TABLE post", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestSearch(t *testing.T) {
	m := &mockExecutor{
		rowsByTable: map[string][]storage.Record{
			"post": {
				{"id": 1, "title": "demo post", "meta": `{"views":3}`},
				{"id": 2, "title": "another demo", "meta": ""},
			},
		},
		total: 12,
	}
	svc := newTestService(m)
	s := fullSchema()
	s.Relations = nil
	svc.SetSchema(s)

	res, err := svc.Search(context.Background(), query.Options{Q: []string{"demo"}, Range: 10})
	require.NoError(t, err)

	require.Len(t, m.builders, 1)
	b := m.builders[0]
	assert.Equal(t, "post", b.table)
	require.Len(t, b.filters, 2)
	assert.Equal(t, "active = ?", b.filters[0].template)
	assert.Equal(t, []any{1}, b.filters[0].args)
	assert.Equal(t, "(LOWER(title) LIKE ? OR LOWER(body) LIKE ?)", b.filters[1].template)
	assert.Equal(t, 0, b.start)
	assert.Equal(t, 10, b.limit)

	assert.Equal(t, int64(12), res.Total)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, map[string]any{"views": float64(3)}, res.Rows[0]["meta"])
	assert.Equal(t, map[string]any{}, res.Rows[1]["meta"])
}

func TestSearchExecutorError(t *testing.T) {
	boom := errors.New("timeout")
	svc := newTestService(&mockExecutor{})
	svc.executor = &failingExecutor{err: boom}
	s := fullSchema()
	s.Relations = nil
	svc.SetSchema(s)

	// Builder errors surface unchanged through the error chain.
	_, err := svc.Search(context.Background(), query.Options{})
	assert.ErrorIs(t, err, boom)
}

type failingExecutor struct {
	err error
}

func (f *failingExecutor) Search(table string) storage.SearchBuilder {
	return &mockBuilder{table: table, rowsErr: f.err, rowErr: f.err, totalErr: f.err}
}

func (f *failingExecutor) Save(context.Context, string, string, storage.Record) (storage.Record, error) {
	return nil, f.err
}

func (f *failingExecutor) Delete(context.Context, string, storage.Record) (int64, error) {
	return 0, f.err
}

func (f *failingExecutor) Close() error { return nil }

func TestRemove(t *testing.T) {
	m := &mockExecutor{}
	svc := newTestService(m)
	svc.SetSchema(fullSchema())

	require.NoError(t, svc.Remove(context.Background(), 3))

	require.Len(t, m.deletes, 1)
	assert.Equal(t, "post", m.deletes[0].table)
	assert.Equal(t, storage.Record{"id": 3}, m.deletes[0].where)
}

func TestLink(t *testing.T) {
	t.Run("inserts the junction pair", func(t *testing.T) {
		m := &mockExecutor{}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		require.NoError(t, svc.Link(context.Background(), "tag", 1, 2))

		require.Len(t, m.saves, 1)
		saved := m.saves[0]
		assert.Equal(t, "post_tag", saved.table)
		assert.Equal(t, "", saved.pkColumn)
		assert.Equal(t, storage.Record{"post_id": 1, "tag_id": 2}, saved.rec)
	})

	t.Run("unknown relation", func(t *testing.T) {
		m := &mockExecutor{}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		err := svc.Link(context.Background(), "category", 1, 2)
		var unknownRel *apperrors.UnknownRelationError
		require.ErrorAs(t, err, &unknownRel)
		assert.Equal(t, "post", unknownRel.Entity)
		assert.Equal(t, "category", unknownRel.Relation)
		assert.Empty(t, m.saves)
	})
}

func TestUnlink(t *testing.T) {
	t.Run("deletes the junction pair", func(t *testing.T) {
		m := &mockExecutor{}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		require.NoError(t, svc.Unlink(context.Background(), "tag", 1, 2))

		require.Len(t, m.deletes, 1)
		assert.Equal(t, "post_tag", m.deletes[0].table)
		assert.Equal(t, storage.Record{"post_id": 1, "tag_id": 2}, m.deletes[0].where)
	})

	t.Run("unknown relation", func(t *testing.T) {
		m := &mockExecutor{}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		err := svc.Unlink(context.Background(), "category", 1, 2)
		var unknownRel *apperrors.UnknownRelationError
		require.ErrorAs(t, err, &unknownRel)
		assert.Empty(t, m.deletes)
	})
}

func TestExists(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		m := &mockExecutor{
			rowByTable: map[string]storage.Record{"post": {"id": 1}},
		}
		svc := newTestService(m)
		svc.SetSchema(fullSchema())

		ok, err := svc.Exists(context.Background(), "email", "a@b.c")
		require.NoError(t, err)
		assert.True(t, ok)

		// Probing again without intervening writes gives the same answer.
		again, err := svc.Exists(context.Background(), "email", "a@b.c")
		require.NoError(t, err)
		assert.Equal(t, ok, again)

		// A bare probe: filter on the key, no relation joins.
		require.Len(t, m.builders, 2)
		b := m.builders[0]
		assert.Empty(t, b.joins)
		require.Len(t, b.filters, 1)
		assert.Equal(t, "email = ?", b.filters[0].template)
		assert.Equal(t, []any{"a@b.c"}, b.filters[0].args)
	})

	t.Run("not found", func(t *testing.T) {
		svc := newTestService(&mockExecutor{})
		svc.SetSchema(fullSchema())

		ok, err := svc.Exists(context.Background(), "email", "a@b.c")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid key", func(t *testing.T) {
		svc := newTestService(&mockExecutor{})
		svc.SetSchema(fullSchema())

		_, err := svc.Exists(context.Background(), "email = 'x' OR 1=1", "a@b.c")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key")
	})
}
