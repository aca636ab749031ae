package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert violates a uniqueness
// constraint, e.g. registering a duplicate student number.
var ErrAlreadyExists = errors.New("already exists")
