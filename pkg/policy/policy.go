// Package policy provides access control for memory operations based on a
// configurable namespace allow-list and a read-only entry list.
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAccessDenied is returned when an operation is rejected by policy.
var ErrAccessDenied = errors.New("access denied")

// Intent represents what the caller wants to do with a (namespace, key) pair.
type Intent int

const (
	// IntentRead covers read and list operations.
	IntentRead Intent = iota
	// IntentWrite covers create, overwrite, and update operations.
	IntentWrite
)

// String returns a human-readable representation of the intent
func (i Intent) String() string {
	switch i {
	case IntentRead:
		return "read"
	case IntentWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Policy evaluates access to memory records. It is immutable after
// construction and safe for concurrent use.
type Policy struct {
	allowedNamespaces map[string]struct{}
	readOnly          map[string]struct{}
}

// New creates a Policy from configuration values. readOnlyEntries use the
// "namespace/key" form; entries without a slash are logged and skipped so a
// typo in configuration never locks up the whole store.
func New(allowedNamespaces, readOnlyEntries []string) *Policy {
	p := &Policy{
		allowedNamespaces: make(map[string]struct{}, len(allowedNamespaces)),
		readOnly:          make(map[string]struct{}, len(readOnlyEntries)),
	}

	for _, ns := range allowedNamespaces {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			continue
		}
		p.allowedNamespaces[ns] = struct{}{}
	}

	for _, entry := range readOnlyEntries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ns, key, found := strings.Cut(entry, "/")
		if !found || ns == "" || key == "" {
			slog.Warn("Ignoring malformed read-only entry, want 'namespace/key'", "entry", entry)
			continue
		}
		p.readOnly[ns+"/"+key] = struct{}{}
	}

	return p
}

// NamespaceAllowed reports whether the namespace may be accessed at all.
// An empty allow-list permits every namespace.
func (p *Policy) NamespaceAllowed(namespace string) bool {
	if len(p.allowedNamespaces) == 0 {
		return true
	}
	_, ok := p.allowedNamespaces[namespace]
	return ok
}

// ReadOnly reports whether the (namespace, key) pair is locked against writes.
// The answer does not depend on whether a record exists.
func (p *Policy) ReadOnly(namespace, key string) bool {
	_, ok := p.readOnly[namespace+"/"+key]
	return ok
}

// Authorize checks the operation against the policy. Reads require an allowed
// namespace; writes additionally require the pair not to be read-only.
// Failures wrap ErrAccessDenied.
func (p *Policy) Authorize(namespace, key string, intent Intent) error {
	if !p.NamespaceAllowed(namespace) {
		return fmt.Errorf("%w: Namespace '%s' is not in the allowed list", ErrAccessDenied, namespace)
	}
	if intent == IntentWrite && p.ReadOnly(namespace, key) {
		return fmt.Errorf("%w: Memory '%s/%s' is marked as read-only", ErrAccessDenied, namespace, key)
	}
	return nil
}
