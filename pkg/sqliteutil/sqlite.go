// Package sqliteutil opens the SQLite database files backing the sqlite
// store.
package sqliteutil

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OpenDB opens the database at path, creating the parent directory when
// needed. The pool is capped at one connection: SQLite allows a single
// writer at a time, and a serialized pool avoids lock errors instead of
// surfacing them.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %q: %w", dir, err)
	}

	// WAL keeps readers unblocked while the writer commits; the busy timeout
	// rides out short lock contention from other processes on the same file.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if IsCantOpenError(err) {
			return nil, DiagnoseDBOpenError(path, err)
		}
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// The file is only created on first use, so ping to surface open
	// failures here rather than on the first query.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		if IsCantOpenError(err) {
			return nil, DiagnoseDBOpenError(path, err)
		}
		return nil, err
	}

	return db, nil
}

// IsCantOpenError reports whether err is SQLite's CANTOPEN (code 14).
func IsCantOpenError(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CANTOPEN
}

// DiagnoseDBOpenError turns an opaque CANTOPEN failure into a message naming
// what is actually wrong with the target path.
func DiagnoseDBOpenError(path string, cause error) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("cannot create database at %q: directory %q does not exist", path, dir)
	case err != nil:
		return fmt.Errorf("cannot create database at %q: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("cannot create database at %q: %q is not a directory", path, dir)
	default:
		return fmt.Errorf("cannot create database at %q: directory %q is not writable: %w", path, dir, cause)
	}
}
