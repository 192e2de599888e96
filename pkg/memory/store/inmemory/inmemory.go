// Package inmemory implements the store contract with a process-local map.
// Nothing survives a restart; it exists for tests and for running without an
// external store.
package inmemory

import (
	"context"
	"sort"
	"time"

	"github.com/memkeep/memkeep/pkg/concurrent"
	"github.com/memkeep/memkeep/pkg/memory/store"
)

type recordKey struct {
	namespace string
	key       string
}

// Store keeps every record in a single concurrent map. The map's write lock
// provides the atomicity Put and Update need.
type Store struct {
	records *concurrent.Map[recordKey, store.Record]
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records: concurrent.NewMap[recordKey, store.Record](),
	}
}

func (s *Store) ListNamespaces(context.Context) ([]store.Namespace, error) {
	counts := make(map[string]int)
	s.records.Range(func(k recordKey, _ store.Record) bool {
		counts[k.namespace]++
		return true
	})

	namespaces := make([]store.Namespace, 0, len(counts))
	for name, n := range counts {
		namespaces = append(namespaces, store.Namespace{Name: name, Records: n})
	}
	// Map iteration order changes between calls; sort so a single listing is
	// stable.
	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].Name < namespaces[j].Name })
	return namespaces, nil
}

func (s *Store) ListKeys(_ context.Context, namespace string) ([]store.Record, error) {
	var records []store.Record
	s.records.Range(func(k recordKey, rec store.Record) bool {
		if k.namespace == namespace {
			rec.Content = ""
			records = append(records, rec)
		}
		return true
	})
	if len(records) == 0 {
		return nil, store.NamespaceNotFound(namespace)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *Store) Get(_ context.Context, namespace, key string) (*store.Record, error) {
	rec, ok := s.records.Load(recordKey{namespace, key})
	if !ok {
		return nil, store.RecordNotFound(namespace, key)
	}
	return &rec, nil
}

func (s *Store) Put(_ context.Context, namespace, key, content string, now time.Time) (*store.Record, bool, error) {
	var created bool
	rec := s.records.Update(recordKey{namespace, key}, func(old store.Record, ok bool) store.Record {
		created = !ok
		next := store.Record{
			Namespace: namespace,
			Key:       key,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if ok {
			next.CreatedAt = old.CreatedAt
		}
		return next
	})
	return &rec, created, nil
}

func (s *Store) Update(_ context.Context, namespace, key, content string, now time.Time) (*store.Record, error) {
	rec, ok := s.records.Replace(recordKey{namespace, key}, func(old store.Record) store.Record {
		old.Content = content
		old.UpdatedAt = now
		return old
	})
	if !ok {
		return nil, store.RecordNotFound(namespace, key)
	}
	return &rec, nil
}

func (s *Store) Delete(_ context.Context, namespace, key string) error {
	if !s.records.Delete(recordKey{namespace, key}) {
		return store.RecordNotFound(namespace, key)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
