package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness violation (duplicate project id or username).
	ErrConflict = errors.New("repository: conflict")
	// ErrInvalidArgument indicates the storage layer rejected a value (check constraint).
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrForeignKey indicates a reference to a row that does not exist, such as
	// inserting a log for a project deleted mid-flight. Callers validate project
	// existence first, so surfacing this means an invariant was violated.
	ErrForeignKey = errors.New("repository: referential integrity violation")
)
