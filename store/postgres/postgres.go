// Package postgres is the PostgreSQL store.Table backend. Every logical
// table shares one items relation keyed by (tbl, pk, sk) with the document
// held as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/synchub/store"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse store db config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create store db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store db: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Table struct {
	db     DB
	schema store.Schema
}

var _ store.Table = (*Table)(nil)

func New(db DB, schema store.Schema) *Table {
	return &Table{db: db, schema: schema}
}

func (t *Table) Get(ctx context.Context, key store.Key) (store.Item, error) {
	var doc []byte
	err := t.db.QueryRow(ctx,
		`SELECT doc FROM items WHERE tbl = $1 AND pk = $2 AND sk = $3`,
		t.schema.Name, key.Partition, key.Sort,
	).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get item from %s: %w", t.schema.Name, err)
	}
	return decode(doc)
}

func (t *Table) Put(ctx context.Context, item store.Item) error {
	key, err := t.schema.KeyOf(item)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	_, err = t.db.Exec(ctx, `
		INSERT INTO items (tbl, pk, sk, doc) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tbl, pk, sk) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		t.schema.Name, key.Partition, key.Sort, doc,
	)
	if err != nil {
		return fmt.Errorf("put item into %s: %w", t.schema.Name, err)
	}
	return nil
}

func (t *Table) Update(ctx context.Context, key store.Key, patch store.Item) (store.Item, error) {
	if err := t.schema.CheckPatch(patch); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return t.Get(ctx, key)
	}
	set, add := store.SplitPatch(patch)
	p, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}

	// doc on the right-hand side is the row before this update.
	expr := "doc || $4::jsonb"
	args := []any{t.schema.Name, key.Partition, key.Sort, p}
	for _, f := range slices.Sorted(maps.Keys(add)) {
		args = append(args, f, add[f])
		fi, ni := len(args)-1, len(args)
		expr = fmt.Sprintf(
			"jsonb_set(%s, ARRAY[$%d::text], to_jsonb(COALESCE((doc->>$%d::text)::bigint, 0) + $%d::bigint))",
			expr, fi, fi, ni,
		)
	}

	var doc []byte
	err = t.db.QueryRow(ctx, `
		UPDATE items SET doc = `+expr+`, updated_at = now()
		WHERE tbl = $1 AND pk = $2 AND sk = $3
		RETURNING doc`,
		args...,
	).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update item in %s: %w", t.schema.Name, err)
	}
	return decode(doc)
}

func (t *Table) Delete(ctx context.Context, key store.Key) error {
	tag, err := t.db.Exec(ctx,
		`DELETE FROM items WHERE tbl = $1 AND pk = $2 AND sk = $3`,
		t.schema.Name, key.Partition, key.Sort,
	)
	if err != nil {
		return fmt.Errorf("delete item from %s: %w", t.schema.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *Table) Query(ctx context.Context, index, value string) ([]store.Item, error) {
	attr, err := t.schema.IndexAttribute(index)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if index == "" {
		rows, err = t.db.Query(ctx,
			`SELECT doc FROM items WHERE tbl = $1 AND pk = $2 ORDER BY pk, sk`,
			t.schema.Name, value,
		)
	} else {
		rows, err = t.db.Query(ctx,
			`SELECT doc FROM items WHERE tbl = $1 AND doc->>$2 = $3 ORDER BY pk, sk`,
			t.schema.Name, attr, value,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.schema.Name, err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.schema.Name, err)
	}

	items := make([]store.Item, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decode(doc []byte) (store.Item, error) {
	item := store.Item{}
	if err := json.Unmarshal(doc, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}
