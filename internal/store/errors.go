package store

import "github.com/rotisserie/eris"

// Sentinel errors both drivers wrap with operation context. Callers classify
// with errors.Is; the API layer maps them onto response codes.
var (
	// ErrNotFound marks lookups of ids that do not exist.
	ErrNotFound = eris.New("not found")

	// ErrConflict marks writes rejected by a scope-uniqueness rule, such as
	// a duplicate canonical name or an already-mapped raw value.
	ErrConflict = eris.New("already exists")
)
