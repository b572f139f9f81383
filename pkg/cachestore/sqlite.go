package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const backendSQLite = "sqlite"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS caches (
		name       TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		cache TEXT NOT NULL,
		key   TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (cache, key)
	)`,
}

// SQLiteStorage keeps stores in a SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLiteStorage opens the database at filename. Use "memory" for a
// shared in-memory database.
func OpenSQLiteStorage(filename string) (*SQLiteStorage, error) {
	if filename == "memory" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", filename, err)
	}
	// Writers serialize on the single connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create sqlite schema: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

// Names implements Storage.
func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY name`)
	if err != nil {
		StoreErrors.WithLabelValues(backendSQLite, "names").Inc()
		return nil, fmt.Errorf("sqlite names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			StoreErrors.WithLabelValues(backendSQLite, "names").Inc()
			return nil, fmt.Errorf("sqlite scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Has implements Storage.
func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM caches WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		StoreErrors.WithLabelValues(backendSQLite, "has").Inc()
		return false, fmt.Errorf("sqlite has: %w", err)
	}
	return true, nil
}

// Populate implements Storage. The store row and all of its entries are
// replaced in one transaction.
func (s *SQLiteStorage) Populate(ctx context.Context, name string, entries []*Entry) (err error) {
	if err := validateName(name); err != nil {
		return err
	}

	values := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		data, err := encodeEntry(entry)
		if err != nil {
			StoreErrors.WithLabelValues(backendSQLite, "populate").Inc()
			return err
		}
		values[entry.Key()] = data
	}

	defer func() {
		if err != nil {
			StoreErrors.WithLabelValues(backendSQLite, "populate").Inc()
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache = ?`, name); err != nil {
		return fmt.Errorf("sqlite clear %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO caches (name, created_at) VALUES (?, ?)`,
		name, time.Now().Unix()); err != nil {
		return fmt.Errorf("sqlite register %s: %w", name, err)
	}
	for key, data := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (cache, key, value) VALUES (?, ?, ?)`,
			name, key, data); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	PopulatedEntries.WithLabelValues(backendSQLite).Set(float64(len(values)))
	return nil
}

// Match implements Storage.
func (s *SQLiteStorage) Match(ctx context.Context, name, key string) (*Entry, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE cache = ? AND key = ?`, name, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		recordMatch(backendSQLite, ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		recordMatch(backendSQLite, err)
		return nil, fmt.Errorf("sqlite match: %w", err)
	}

	entry, err := decodeEntry(data)
	recordMatch(backendSQLite, err)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete implements Storage.
func (s *SQLiteStorage) Delete(ctx context.Context, name string) (existed bool, err error) {
	defer func() {
		if err != nil {
			StoreErrors.WithLabelValues(backendSQLite, "delete").Inc()
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("sqlite delete %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache = ?`, name); err != nil {
		return false, fmt.Errorf("sqlite delete entries %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite commit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite rows affected: %w", err)
	}
	return n > 0, nil
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
