// Package store defines the contract every memory backend implements.
//
// A backend persists one record per (namespace, key) pair. Namespaces have no
// existence of their own: they appear when their first record is written and
// disappear when their last record is removed. Callers that need a namespace
// registry independent of records must not build one here.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for store operations. Backends translate their native
// failure modes onto these; no driver error type crosses the package
// boundary. Callers dispatch with errors.Is.
var (
	// ErrRecordNotFound is returned by Get and Update when no record exists
	// for the (namespace, key) pair.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNamespaceNotFound is returned by ListKeys when a namespace holds no
	// records. An empty namespace is indistinguishable from one that never
	// existed.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrUnavailable wraps transport and driver failures. The operation may
	// be retried by the caller.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrWriteConflict is returned when a bounded optimistic-retry loop on a
	// concurrent write is exhausted. The whole operation may be retried.
	ErrWriteConflict = errors.New("concurrent write conflict")
)

// Record is a single memory: opaque text content plus identity and write
// timestamps. CreatedAt is set once at the first successful write for the
// pair; UpdatedAt moves on every successful write, so CreatedAt <= UpdatedAt.
type Record struct {
	Namespace string
	Key       string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Namespace is a listing entry: the namespace name and how many records it
// currently holds.
type Namespace struct {
	Name    string
	Records int
}

// Store is the uniform backend contract. Implementations must be safe for
// concurrent use; the connection or client behind a Store is process-wide and
// shared by all callers.
type Store interface {
	// ListNamespaces returns every namespace that currently holds at least
	// one record, with its record count. The result is derived by scanning
	// records, is stable within a single call, and carries no ordering
	// guarantee beyond that.
	ListNamespaces(ctx context.Context) ([]Namespace, error)

	// ListKeys returns the records of a namespace with their Content left
	// empty (listings are metadata only). Returns ErrNamespaceNotFound when
	// the namespace holds no records.
	ListKeys(ctx context.Context, namespace string) ([]Record, error)

	// Get returns the record for (namespace, key), or ErrRecordNotFound.
	Get(ctx context.Context, namespace, key string) (*Record, error)

	// Put creates or overwrites the record. A new record gets
	// CreatedAt = UpdatedAt = now; an existing one keeps its CreatedAt and
	// gets UpdatedAt = now. The preserve-CreatedAt read and the write are
	// atomic with respect to concurrent Puts on the same pair. The bool
	// reports whether the record was created rather than overwritten; it is
	// best-effort metadata, not a correctness signal.
	Put(ctx context.Context, namespace, key, content string, now time.Time) (*Record, bool, error)

	// Update overwrites the content and UpdatedAt of an existing record,
	// preserving CreatedAt. Returns ErrRecordNotFound without creating
	// anything when no record exists.
	Update(ctx context.Context, namespace, key, content string, now time.Time) (*Record, error)

	// Delete removes the record. This is a backend capability used by
	// administrative tooling only; the service never exposes it.
	// Returns ErrRecordNotFound when no record exists.
	Delete(ctx context.Context, namespace, key string) error

	// Close releases the backend connection.
	Close() error
}

// RecordNotFound builds the standard ErrRecordNotFound for a pair.
func RecordNotFound(namespace, key string) error {
	return fmt.Errorf("%w: Memory '%s' not found in namespace '%s'", ErrRecordNotFound, key, namespace)
}

// NamespaceNotFound builds the standard ErrNamespaceNotFound for a namespace.
func NamespaceNotFound(namespace string) error {
	return fmt.Errorf("%w: Namespace '%s' not found", ErrNamespaceNotFound, namespace)
}

// Unavailable wraps a driver failure as ErrUnavailable, keeping its message
// but not its type.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
