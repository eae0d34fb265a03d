package resolution

import "errors"

var (
	// ErrCheckpointNotFound indicates no checkpoint exists for the ticket.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointUnavailable indicates the checkpoint store could not be
	// reached. Distinct from not-found: the ticket may well exist.
	ErrCheckpointUnavailable = errors.New("checkpoint store unavailable")
)
