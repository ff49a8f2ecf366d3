package repo

import "errors"

// ErrNotFound is returned by all repos when the requested record does not
// exist (or is no longer live, where the query is scoped to live records).
var ErrNotFound = errors.New("record not found")
