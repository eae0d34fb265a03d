package evidence

import "errors"

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrStoreUnavailable indicates the underlying index could not be
	// reached. Callers must not treat this as "no results": an empty
	// result set is a legitimate outcome, a broken store is not.
	ErrStoreUnavailable = errors.New("evidence store unavailable")

	// ErrEmptyEmbedding indicates the embedder returned no vector for
	// the given input.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)
