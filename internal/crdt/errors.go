package crdt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariantViolation indicates replicated state that cannot back a
	// document: a missing document handle or operations that reference items
	// which never arrived.
	ErrInvariantViolation = errors.New("crdt invariant violation")
	// ErrMalformedState indicates bytes that do not decode as replicated state.
	ErrMalformedState = fmt.Errorf("%w: malformed replicated state", ErrInvariantViolation)
)
