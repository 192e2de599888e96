// Package memory holds the access service sitting between callers and the
// storage backends: it validates identifiers, enforces the access policy,
// stamps timestamps, and shapes results.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/memkeep/memkeep/pkg/memory/store"
	"github.com/memkeep/memkeep/pkg/policy"
)

// Memory is a full record as seen by callers: content plus metadata and the
// policy-derived read-only flag. The flag is computed per call and never
// persisted, so policy changes apply immediately.
type Memory struct {
	Namespace string
	Key       string
	Content   string
	ReadOnly  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one listing row: a record's identity and metadata without its
// content.
type Entry struct {
	Namespace string
	Key       string
	ReadOnly  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service orchestrates every memory operation. Order is fixed: identifier
// validation, then policy, then backend. It holds no state across calls and
// is safe for concurrent use.
type Service struct {
	store  store.Store
	policy *policy.Policy
	tracer trace.Tracer
	now    func() time.Time
}

type Option func(*Service)

// WithTracer enables tracing of service operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithClock overrides the write-timestamp source. Tests use this to pin
// time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(st store.Store, pol *policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:  st,
		policy: pol,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListNamespaces returns every namespace visible under the policy, with
// record counts.
func (s *Service) ListNamespaces(ctx context.Context) ([]store.Namespace, error) {
	ctx, span := s.startSpan(ctx, "memory.list_namespaces")
	defer span.End()

	namespaces, err := s.store.ListNamespaces(ctx)
	if err != nil {
		return nil, spanErr(span, err)
	}

	visible := make([]store.Namespace, 0, len(namespaces))
	for _, ns := range namespaces {
		if s.policy.NamespaceAllowed(ns.Name) {
			visible = append(visible, ns)
		}
	}

	slog.Debug("Listed namespaces", "total", len(namespaces), "visible", len(visible))
	return visible, nil
}

// ListKeys returns the records of one namespace, content omitted, each
// annotated with its read-only status.
func (s *Service) ListKeys(ctx context.Context, namespace string) ([]Entry, error) {
	ctx, span := s.startSpan(ctx, "memory.list_keys",
		trace.WithAttributes(attribute.String("memory.namespace", namespace)))
	defer span.End()

	if err := ValidateIdentifier("namespace", namespace); err != nil {
		return nil, spanErr(span, err)
	}
	if err := s.policy.Authorize(namespace, "", policy.IntentRead); err != nil {
		return nil, spanErr(span, err)
	}

	records, err := s.store.ListKeys(ctx, namespace)
	if err != nil {
		return nil, spanErr(span, err)
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{
			Namespace: namespace,
			Key:       rec.Key,
			ReadOnly:  s.policy.ReadOnly(namespace, rec.Key),
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}

	slog.Debug("Listed keys", "namespace", namespace, "count", len(entries))
	return entries, nil
}

// Read returns one record. Read-only records stay readable; only the
// namespace allow-list gates reads.
func (s *Service) Read(ctx context.Context, namespace, key string) (*Memory, error) {
	ctx, span := s.startSpan(ctx, "memory.read", trace.WithAttributes(
		attribute.String("memory.namespace", namespace),
		attribute.String("memory.key", key),
	))
	defer span.End()

	if err := s.validatePair(namespace, key); err != nil {
		return nil, spanErr(span, err)
	}
	if err := s.policy.Authorize(namespace, key, policy.IntentRead); err != nil {
		return nil, spanErr(span, err)
	}

	rec, err := s.store.Get(ctx, namespace, key)
	if err != nil {
		return nil, spanErr(span, err)
	}

	slog.Debug("Read memory", "namespace", namespace, "key", key)
	return s.memory(rec), nil
}

// Write creates or overwrites a record. The policy check runs before
// existence is even established, so a read-only pair rejects writes whether
// or not a record exists yet. The bool reports created (true) versus
// overwritten (false); treat it as best-effort metadata.
func (s *Service) Write(ctx context.Context, namespace, key, content string) (*Memory, bool, error) {
	ctx, span := s.startSpan(ctx, "memory.write", trace.WithAttributes(
		attribute.String("memory.namespace", namespace),
		attribute.String("memory.key", key),
	))
	defer span.End()

	if err := s.validatePair(namespace, key); err != nil {
		return nil, false, spanErr(span, err)
	}
	if err := s.policy.Authorize(namespace, key, policy.IntentWrite); err != nil {
		return nil, false, spanErr(span, err)
	}

	rec, created, err := s.store.Put(ctx, namespace, key, content, s.now())
	if err != nil {
		return nil, false, spanErr(span, err)
	}

	slog.Debug("Wrote memory", "namespace", namespace, "key", key, "created", created)
	return s.memory(rec), created, nil
}

// Edit overwrites the content of an existing record and fails with the
// record-not-found error when there is none. This is the one behavioral
// difference from Write: callers use it to say "this must already exist".
func (s *Service) Edit(ctx context.Context, namespace, key, content string) (*Memory, error) {
	ctx, span := s.startSpan(ctx, "memory.edit", trace.WithAttributes(
		attribute.String("memory.namespace", namespace),
		attribute.String("memory.key", key),
	))
	defer span.End()

	if err := s.validatePair(namespace, key); err != nil {
		return nil, spanErr(span, err)
	}
	if err := s.policy.Authorize(namespace, key, policy.IntentWrite); err != nil {
		return nil, spanErr(span, err)
	}

	rec, err := s.store.Update(ctx, namespace, key, content, s.now())
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			err = fmt.Errorf("%w. Use write_file to create new memories.", err)
		}
		return nil, spanErr(span, err)
	}

	slog.Debug("Edited memory", "namespace", namespace, "key", key)
	return s.memory(rec), nil
}

// Search returns the entries of a namespace whose key contains query,
// case-insensitively. It matches keys only, never content.
func (s *Service) Search(ctx context.Context, namespace, query string) ([]Entry, error) {
	ctx, span := s.startSpan(ctx, "memory.search", trace.WithAttributes(
		attribute.String("memory.namespace", namespace),
	))
	defer span.End()

	entries, err := s.ListKeys(ctx, namespace)
	if err != nil {
		return nil, spanErr(span, err)
	}

	q := strings.ToLower(query)
	matches := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Key), q) {
			matches = append(matches, entry)
		}
	}

	slog.Debug("Searched memories", "namespace", namespace, "query", query, "matches", len(matches))
	return matches, nil
}

func (s *Service) validatePair(namespace, key string) error {
	if err := ValidateIdentifier("namespace", namespace); err != nil {
		return err
	}
	return ValidateIdentifier("key", key)
}

func (s *Service) memory(rec *store.Record) *Memory {
	return &Memory{
		Namespace: rec.Namespace,
		Key:       rec.Key,
		Content:   rec.Content,
		ReadOnly:  s.policy.ReadOnly(rec.Namespace, rec.Key),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func (s *Service) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name, opts...)
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
