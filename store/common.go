package store

import "github.com/pkg/errors"

// ErrNotFound is returned when a row scoped to the requesting user does not
// exist. Handlers map it to a 404 without detail.
var ErrNotFound = errors.New("not found")
