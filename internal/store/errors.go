package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when an insert violates the unique email
// constraint. Concurrent registrations race to one winner; the loser
// observes this error.
var ErrDuplicateEmail = errors.New("email already registered")
