// Package storage defines the hierarchical key-path document-tree contract
// that every metrics/events/pings database is layered on, plus an in-memory
// reference driver used by tests and by environments with no durable
// storage backend.
package storage

// Index is an ordered path into the rooted JSON-like document tree.
type Index []string

// TransformFunc computes a new subvalue from the current one; it receives
// nil when the path does not currently hold a value.
type TransformFunc func(current any) any

// Store is a rooted document tree keyed by an ordered path. Implementations
// must never silently traverse through a non-object intermediate value: a
// collision returns ErrPathCollision and the caller logs and moves on.
type Store interface {
	// Get returns the subvalue at path, or (nil, false) if the path does
	// not exist or the stored root is empty.
	Get(path Index) (any, bool)

	// Update computes the new subvalue via fn and persists it, creating
	// intermediate objects as needed. It returns ErrPathCollision if a
	// prefix of path already holds a non-object value.
	Update(path Index, fn TransformFunc) error

	// Delete removes the subvalue at path. Delete(nil) erases the root.
	Delete(path Index) error
}

// Factory constructs a Store scoped to a single root key (one per
// sub-store: userLifetimeMetrics, pingLifetimeMetrics, appLifetimeMetrics,
// events, pendingPings, ping-info sequence counters, ...).
type Factory func(rootKey string) Store
