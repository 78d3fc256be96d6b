package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a concurrent merge raced this one on the same
	// business key. Callers re-read current state and retry a bounded number
	// of times before reporting the entity as failed.
	ErrConflict = errors.New("conflict")

	// ErrSurrogateKeyCollision indicates the sequence handed out a key that
	// already exists in the dimension. The allocator and the table have
	// diverged; the batch must abort rather than guess.
	ErrSurrogateKeyCollision = errors.New("surrogate key collision")

	// ErrUnresolvedReference indicates a fact record references a dimension
	// business key with no current warehouse row.
	ErrUnresolvedReference = errors.New("unresolved dimension reference")
)
