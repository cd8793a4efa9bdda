// Package store persists reconciled channel collections in a SQLite file:
// one table per channel, one for annotations, plus channel metadata and run
// attributes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/pipeline"
)

var (
	ErrExists         = errors.New("output already exists")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownAttr    = errors.New("unknown attribute")
)

const schema = `
CREATE TABLE channels (
	table_name  TEXT PRIMARY KEY,
	id          INTEGER NOT NULL UNIQUE,
	hex_id      TEXT NOT NULL,
	name        TEXT,
	description TEXT,
	unit        TEXT,
	scale       REAL,
	derived     INTEGER NOT NULL DEFAULT 0,
	samples     INTEGER NOT NULL
);
CREATE TABLE annotations (
	seq  INTEGER PRIMARY KEY,
	id   INTEGER NOT NULL,
	ts   INTEGER NOT NULL,
	text TEXT NOT NULL
);
CREATE TABLE attributes (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

var reservedTables = map[string]bool{
	"channels":    true,
	"annotations": true,
	"attributes":  true,
}

// Store is an open output file.
type Store struct {
	db   *sql.DB
	path string
}

// Create makes a new store at path. An existing file is replaced only when
// overwrite is set.
func Create(ctx context.Context, path string, overwrite bool) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Open opens an existing store read-only.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// tableName picks the table for d: its key, or key_<id> when that is taken,
// then key_<id>_<n> until a free name is found.
func tableName(d catalog.Descriptor, used map[string]bool) string {
	name := d.Key()
	for n := 0; reservedTables[strings.ToLower(name)] || used[strings.ToLower(name)]; n++ {
		if n == 0 {
			name = fmt.Sprintf("%s_%d", d.Key(), d.ID)
		} else {
			name = fmt.Sprintf("%s_%d_%d", d.Key(), d.ID, n)
		}
	}
	used[strings.ToLower(name)] = true
	return name
}

// Write stores every collection and annotation in one transaction.
func (s *Store) Write(ctx context.Context, cols []pipeline.ChannelCollection, anns []canlog.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	used := make(map[string]bool)
	for _, c := range cols {
		if err := writeChannel(ctx, tx, tableName(c.Descriptor, used), c); err != nil {
			return err
		}
	}
	if err := writeAnnotations(ctx, tx, anns); err != nil {
		return err
	}
	return tx.Commit()
}

func writeChannel(ctx context.Context, tx *sql.Tx, table string, c pipeline.ChannelCollection) error {
	d := c.Descriptor
	var scale sql.NullFloat64
	if v, ok := d.ScaleValue(); ok {
		scale = sql.NullFloat64{Float64: float64(v), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO channels (table_name, id, hex_id, name, description, unit, scale, derived, samples)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		table, int64(d.ID), fmt.Sprintf("0x%08X", d.ID), nullString(d.Name), nullString(d.Description),
		nullString(d.Unit), scale, d.Derived, len(c.Samples))
	if err != nil {
		return fmt.Errorf("channel %s: %w", table, err)
	}
	q := quoteIdent(table)
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+q+" (ts INTEGER NOT NULL, value REAL NOT NULL)"); err != nil {
		return fmt.Errorf("channel %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+q+" (ts, value) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, smp := range c.Samples {
		if _, err := stmt.ExecContext(ctx, int64(smp.Timestamp), float64(smp.Value)); err != nil {
			return fmt.Errorf("channel %s: %w", table, err)
		}
	}
	return nil
}

func writeAnnotations(ctx context.Context, tx *sql.Tx, anns []canlog.Annotation) error {
	if len(anns) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO annotations (id, ts, text) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range anns {
		if _, err := stmt.ExecContext(ctx, int64(a.ID), int64(a.Timestamp), a.Text); err != nil {
			return fmt.Errorf("annotation: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SetAttr records a run attribute, replacing any previous value.
func (s *Store) SetAttr(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO attributes (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func (s *Store) Attr(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM attributes WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownAttr, key)
	}
	return v, err
}

// Channel is one row of the channel metadata table.
type Channel struct {
	Table      string
	Descriptor catalog.Descriptor
	Samples    int64
}

// Channels lists the stored channels in id order.
func (s *Store) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT table_name, id, name, description, unit, scale, derived, samples FROM channels ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (Channel, error) {
	var (
		c                       Channel
		id                      int64
		name, description, unit sql.NullString
		scale                   sql.NullFloat64
	)
	err := row.Scan(&c.Table, &id, &name, &description, &unit, &scale, &c.Descriptor.Derived, &c.Samples)
	if err != nil {
		return c, err
	}
	c.Descriptor.ID = uint32(id)
	c.Descriptor.Name = name.String
	c.Descriptor.Description = description.String
	c.Descriptor.Unit = unit.String
	if scale.Valid {
		v := float32(scale.Float64)
		c.Descriptor.Scale = &v
	}
	return c, nil
}

// Lookup finds a channel by table name, symbolic name or id. Ids may be
// decimal or 0x prefixed hex.
func (s *Store) Lookup(ctx context.Context, key string) (Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT table_name, id, name, description, unit, scale, derived, samples FROM channels
		 WHERE table_name = ? OR name = ? ORDER BY id LIMIT 1`, key, key)
	c, err := scanChannel(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return c, err
	}
	id, perr := parseID(key)
	if perr != nil {
		return c, fmt.Errorf("%w: %s", ErrUnknownChannel, key)
	}
	row = s.db.QueryRowContext(ctx,
		"SELECT table_name, id, name, description, unit, scale, derived, samples FROM channels WHERE id = ?", int64(id))
	c, err = scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: %s", ErrUnknownChannel, key)
	}
	return c, err
}

func parseID(key string) (uint32, error) {
	base := 10
	if strings.HasPrefix(key, "0x") || strings.HasPrefix(key, "0X") {
		key, base = key[2:], 16
	}
	v, err := strconv.ParseUint(key, base, 32)
	return uint32(v), err
}

// Series returns the samples of the channel named by key in stored order.
func (s *Store) Series(ctx context.Context, key string) (Channel, []canlog.Sample, error) {
	c, err := s.Lookup(ctx, key)
	if err != nil {
		return c, nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT ts, value FROM "+quoteIdent(c.Table)+" ORDER BY rowid")
	if err != nil {
		return c, nil, err
	}
	defer rows.Close()
	out := make([]canlog.Sample, 0, c.Samples)
	for rows.Next() {
		var (
			ts    int64
			value float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return c, nil, err
		}
		out = append(out, canlog.Sample{ID: c.Descriptor.ID, Value: float32(value), Timestamp: uint64(ts)})
	}
	return c, out, rows.Err()
}

// Annotations returns the stored annotations in file order.
func (s *Store) Annotations(ctx context.Context) ([]canlog.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, ts, text FROM annotations ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []canlog.Annotation
	for rows.Next() {
		var id, ts int64
		var a canlog.Annotation
		if err := rows.Scan(&id, &ts, &a.Text); err != nil {
			return nil, err
		}
		a.ID, a.Timestamp = uint32(id), uint64(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}
