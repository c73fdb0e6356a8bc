package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the index database at dbPath.
func OpenSQLite(dbPath string, logger *slog.Logger) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if err := RunMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("opened index database", "path", dbPath)
	return db, nil
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SQLiteCollection stores one collection in its own table. Metadata is a JSON
// object filtered with json_extract; embeddings are little-endian float32
// blobs and distances are computed in Go.
type SQLiteCollection struct {
	db    *sql.DB
	table string
}

func NewSQLiteCollection(ctx context.Context, db *sql.DB, name string) (*SQLiteCollection, error) {
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	c := &SQLiteCollection{db: db, table: "collection_" + name}
	if err := c.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate collection %s: %w", name, err)
	}
	return c, nil
}

func (c *SQLiteCollection) migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		id        TEXT NOT NULL UNIQUE,
		document  TEXT NOT NULL,
		metadata  TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL
	);`, c.table)
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func (c *SQLiteCollection) Upsert(ctx context.Context, records []Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, document, metadata, embedding) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET document = excluded.document,
		   metadata = excluded.metadata, embedding = excluded.embedding`, c.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		if r.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Document, string(meta), encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (c *SQLiteCollection) Query(ctx context.Context, embedding []float32, filter Filter, limit int) ([]Match, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, document, metadata, embedding FROM %s%s ORDER BY seq`, c.table, where)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Match
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Match{Record: r, Distance: cosineDistance(embedding, r.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(candidates, limit), nil
}

func (c *SQLiteCollection) Get(ctx context.Context, id string) (*Record, error) {
	row := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, document, metadata, embedding FROM %s WHERE id = ?`, c.table), id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *SQLiteCollection) IDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY seq`, c.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLiteCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)).Scan(&n)
	return n, err
}

func (c *SQLiteCollection) Delete(ctx context.Context, filter Filter) (int, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s%s`, c.table, where), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// whereClause renders filter as " WHERE ..." over json_extract, or "" when
// the filter is empty.
func whereClause(filter Filter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	for k, v := range filter {
		if !identPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter key %q", k)
		}
		where = append(where, "json_extract(metadata, ?) = ?")
		args = append(args, "$."+k, v)
	}
	if len(where) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(where, " AND "), args, nil
}

func (c *SQLiteCollection) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, c.table))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		r    Record
		meta string
		blob []byte
	)
	if err := s.Scan(&r.ID, &r.Document, &meta, &blob); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return Record{}, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
	}
	r.Embedding = decodeVector(blob)
	return r, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
