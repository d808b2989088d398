package store

import "github.com/Harshitk-cp/atomspace/internal/domain"

// ErrNotFound is returned by every backend when an atom or snapshot is missing.
var ErrNotFound = domain.ErrNotFound
