// Package sqlite implements the store contract on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memkeep/memkeep/pkg/memory/store"
	"github.com/memkeep/memkeep/pkg/sqliteutil"
)

// Store persists records in a single memories table keyed by
// (namespace, key). Timestamps are stored as RFC 3339 text with nanoseconds.
// The connection is serialized (one writer) by sqliteutil, which is all the
// atomicity Put needs on top of its transaction.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens (creating if necessary) the database at path and ensures the
// schema exists.
func New(path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS memories (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		db.Close()
		if sqliteutil.IsCantOpenError(err) {
			return nil, sqliteutil.DiagnoseDBOpenError(path, err)
		}
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) ListNamespaces(ctx context.Context) ([]store.Namespace, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT namespace, COUNT(*) FROM memories GROUP BY namespace ORDER BY namespace")
	if err != nil {
		return nil, store.Unavailable("listing namespaces", err)
	}
	defer rows.Close()

	var namespaces []store.Namespace
	for rows.Next() {
		var ns store.Namespace
		if err := rows.Scan(&ns.Name, &ns.Records); err != nil {
			return nil, store.Unavailable("scanning namespace row", err)
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("listing namespaces", err)
	}

	return namespaces, nil
}

func (s *Store) ListKeys(ctx context.Context, namespace string) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, created_at, updated_at FROM memories WHERE namespace = ? ORDER BY key", namespace)
	if err != nil {
		return nil, store.Unavailable("listing keys", err)
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var key, createdAt, updatedAt string
		if err := rows.Scan(&key, &createdAt, &updatedAt); err != nil {
			return nil, store.Unavailable("scanning key row", err)
		}
		rec, err := buildRecord(namespace, key, "", createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("listing keys", err)
	}

	if len(records) == 0 {
		return nil, store.NamespaceNotFound(namespace)
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, namespace, key string) (*store.Record, error) {
	var content, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT content, created_at, updated_at FROM memories WHERE namespace = ? AND key = ?",
		namespace, key).Scan(&content, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.RecordNotFound(namespace, key)
		}
		return nil, store.Unavailable("reading record", err)
	}
	return buildRecord(namespace, key, content, createdAt, updatedAt)
}

// Put reads the prior created_at and upserts inside one transaction. The
// ON CONFLICT clause never touches created_at, so an overwrite keeps it even
// if another writer slipped in between open and commit.
func (s *Store) Put(ctx context.Context, namespace, key, content string, now time.Time) (*store.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, store.Unavailable("starting write", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := now
	created := false
	var prior string
	err = tx.QueryRowContext(ctx,
		"SELECT created_at FROM memories WHERE namespace = ? AND key = ?", namespace, key).Scan(&prior)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return nil, false, store.Unavailable("checking prior record", err)
	default:
		createdAt, err = parseTime(prior)
		if err != nil {
			return nil, false, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (namespace, key, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
		  content = excluded.content,
		  updated_at = excluded.updated_at`,
		namespace, key, content, formatTime(createdAt), formatTime(now))
	if err != nil {
		return nil, false, store.Unavailable("writing record", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, store.Unavailable("committing write", err)
	}

	return &store.Record{
		Namespace: namespace,
		Key:       key,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, created, nil
}

func (s *Store) Update(ctx context.Context, namespace, key, content string, now time.Time) (*store.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Unavailable("starting update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prior string
	err = tx.QueryRowContext(ctx,
		"SELECT created_at FROM memories WHERE namespace = ? AND key = ?", namespace, key).Scan(&prior)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.RecordNotFound(namespace, key)
		}
		return nil, store.Unavailable("checking prior record", err)
	}
	createdAt, err := parseTime(prior)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE memories SET content = ?, updated_at = ? WHERE namespace = ? AND key = ?",
		content, formatTime(now), namespace, key)
	if err != nil {
		return nil, store.Unavailable("updating record", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Unavailable("committing update", err)
	}

	return &store.Record{
		Namespace: namespace,
		Key:       key,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE namespace = ? AND key = ?", namespace, key)
	if err != nil {
		return store.Unavailable("deleting record", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.Unavailable("deleting record", err)
	}
	if rowsAffected == 0 {
		return store.RecordNotFound(namespace, key)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func buildRecord(namespace, key, content, createdAt, updatedAt string) (*store.Record, error) {
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &store.Record{
		Namespace: namespace,
		Key:       key,
		Content:   content,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q in store: %w", s, err)
	}
	return t, nil
}
