package storage

import "errors"

// ErrPathCollision is returned by Update when a prefix of the requested
// path already holds a non-object value and therefore cannot be traversed.
var ErrPathCollision = errors.New("storage: path collides with a non-object value")

// ErrInvalidSchema names a stored leaf that fails its kind's validator.
// Nothing in this module returns it: the metrics database deletes such a
// leaf and reports it absent instead.
var ErrInvalidSchema = errors.New("storage: stored value failed schema validation")
