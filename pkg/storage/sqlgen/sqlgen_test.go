package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectSQLPostgres(t *testing.T) {
	q := Query{Dialect: Postgres, Table: "post"}
	q.InnerJoinUsing("post_author", "post_id")
	q.InnerJoinOn("post_related", "post_related.related_id = post.post_id")
	q.Filter("active = ?", 1)
	q.Filter("(LOWER(title) LIKE ? OR LOWER(body) LIKE ?)", "%demo%", "%demo%")
	q.Sort("created", "DESC")
	q.Start(20)
	q.Range(10)

	stmt, args := q.SelectSQL()
	assert.Equal(t,
		"SELECT post.* FROM post"+
			" INNER JOIN post_author USING (post_id)"+
			" INNER JOIN post_related ON post_related.related_id = post.post_id"+
			" WHERE active = $1 AND (LOWER(title) LIKE $2 OR LOWER(body) LIKE $3)"+
			" ORDER BY created DESC LIMIT 10 OFFSET 20",
		stmt)
	assert.Equal(t, []any{1, "%demo%", "%demo%"}, args)
}

func TestSelectSQLMySQL(t *testing.T) {
	q := Query{Dialect: MySQL, Table: "post"}
	q.Filter("active = ?", 1)
	q.Range(5)

	stmt, args := q.SelectSQL()
	assert.Equal(t, "SELECT post.* FROM post WHERE active = ? LIMIT 5", stmt)
	assert.Equal(t, []any{1}, args)
}

func TestSelectSQLSQLServer(t *testing.T) {
	t.Run("pagination with sort", func(t *testing.T) {
		q := Query{Dialect: SQLServer, Table: "post"}
		q.Filter("active = ?", 1)
		q.Sort("created", "DESC")
		q.Start(20)
		q.Range(10)

		stmt, _ := q.SelectSQL()
		assert.Equal(t,
			"SELECT post.* FROM post WHERE active = @p1"+
				" ORDER BY created DESC OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY",
			stmt)
	})

	t.Run("pagination without sort gets a constant order", func(t *testing.T) {
		q := Query{Dialect: SQLServer, Table: "post"}
		q.Range(10)

		stmt, _ := q.SelectSQL()
		assert.Equal(t,
			"SELECT post.* FROM post ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY",
			stmt)
	})
}

func TestSelectSQLNoClauses(t *testing.T) {
	q := Query{Dialect: Postgres, Table: "post"}
	stmt, args := q.SelectSQL()
	assert.Equal(t, "SELECT post.* FROM post", stmt)
	assert.Nil(t, args)
}

func TestCountSQL(t *testing.T) {
	q := Query{Dialect: Postgres, Table: "post"}
	q.InnerJoinUsing("post_tag", "post_id")
	q.Filter("tag_id = ?", 7)
	q.Sort("created", "DESC")
	q.Start(20)
	q.Range(10)

	// Same joins and filters, no ordering or window.
	stmt, args := q.CountSQL()
	assert.Equal(t, "SELECT COUNT(*) FROM post INNER JOIN post_tag USING (post_id) WHERE tag_id = $1", stmt)
	assert.Equal(t, []any{7}, args)
}

func TestRebind(t *testing.T) {
	stmt, next := Postgres.Rebind("a = ? AND b = ?", 3)
	assert.Equal(t, "a = $3 AND b = $4", stmt)
	assert.Equal(t, 5, next)

	stmt, next = SQLServer.Rebind("a = ?", 1)
	assert.Equal(t, "a = @p1", stmt)
	assert.Equal(t, 2, next)

	stmt, next = MySQL.Rebind("a = ? AND b = ?", 1)
	assert.Equal(t, "a = ? AND b = ?", stmt)
	assert.Equal(t, 3, next)
}

func TestInsert(t *testing.T) {
	stmt, args := Insert(Postgres, "post", map[string]any{"title": "x", "active": 1})
	assert.Equal(t, "INSERT INTO post (active, title) VALUES ($1, $2)", stmt)
	assert.Equal(t, []any{1, "x"}, args)

	stmt, _ = Insert(MySQL, "post", map[string]any{"title": "x"})
	assert.Equal(t, "INSERT INTO post (title) VALUES (?)", stmt)
}

func TestUpdate(t *testing.T) {
	stmt, args := Update(Postgres, "post", "id", map[string]any{"id": 9, "title": "x", "active": 1})
	assert.Equal(t, "UPDATE post SET active = $1, title = $2 WHERE id = $3", stmt)
	assert.Equal(t, []any{1, "x", 9}, args)
}

func TestDelete(t *testing.T) {
	stmt, args := Delete(MySQL, "post_tag", map[string]any{"post_id": 1, "tag_id": 2})
	assert.Equal(t, "DELETE FROM post_tag WHERE post_id = ? AND tag_id = ?", stmt)
	assert.Equal(t, []any{1, 2}, args)

	stmt, args = Delete(Postgres, "post", nil)
	assert.Equal(t, "DELETE FROM post", stmt)
	assert.Empty(t, args)
}
