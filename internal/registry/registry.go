// Package registry tracks the active sessions and which one is current.
//
// A Registry is not safe for concurrent use. It is owned by the coordinator
// goroutine.
package registry

import (
	"slices"

	"github.com/Iron-Ham/sipchat/internal/errors"
)

// Registry is an insertion-ordered set with a single current member.
// Current is always either unset or a member.
type Registry[T comparable] struct {
	items      []T
	current    T
	hasCurrent bool
}

// New creates an empty registry.
func New[T comparable]() *Registry[T] {
	return &Registry[T]{}
}

// Add appends s if it is not already present. When makeCurrent is true, s
// becomes current.
func (r *Registry[T]) Add(s T, makeCurrent bool) {
	if !slices.Contains(r.items, s) {
		r.items = append(r.items, s)
	}
	if makeCurrent {
		r.current = s
		r.hasCurrent = true
	}
}

// Remove deletes s and reports whether it was present. If s was current, the
// entry now at its old index (modulo the new length) becomes current, or
// current is unset when the registry is empty. Survivors keep their order.
func (r *Registry[T]) Remove(s T) bool {
	idx := slices.Index(r.items, s)
	if idx < 0 {
		return false
	}
	r.items = slices.Delete(r.items, idx, idx+1)

	if r.hasCurrent && r.current == s {
		if len(r.items) == 0 {
			r.clearCurrent()
		} else {
			r.current = r.items[idx%len(r.items)]
		}
	}
	return true
}

// Rotate makes the entry after current the new current, wrapping around.
// It fails with errors.ErrNoOtherSession when fewer than two entries exist.
func (r *Registry[T]) Rotate() error {
	if len(r.items) < 2 {
		return errors.ErrNoOtherSession
	}
	idx := 0
	if r.hasCurrent {
		idx = (slices.Index(r.items, r.current) + 1) % len(r.items)
	}
	r.current = r.items[idx]
	r.hasCurrent = true
	return nil
}

// Current returns the current entry, if any.
func (r *Registry[T]) Current() (T, bool) {
	return r.current, r.hasCurrent
}

// Index returns the position of s, or -1.
func (r *Registry[T]) Index(s T) int {
	return slices.Index(r.items, s)
}

// Contains reports whether s is registered.
func (r *Registry[T]) Contains(s T) bool {
	return slices.Contains(r.items, s)
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	return len(r.items)
}

// Items returns a copy of the entries in order.
func (r *Registry[T]) Items() []T {
	return slices.Clone(r.items)
}

func (r *Registry[T]) clearCurrent() {
	var zero T
	r.current = zero
	r.hasCurrent = false
}
