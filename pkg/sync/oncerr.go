// Package sync carries small synchronization helpers used by the storage
// backends.
package sync

import "sync"

// OnceErr wraps fn so it runs at most once; every call returns that first
// result and error. A failed fn is never retried.
func OnceErr[T any](fn func() (T, error)) func() (T, error) {
	return sync.OnceValues(fn)
}
