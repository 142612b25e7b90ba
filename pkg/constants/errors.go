package constants

import "errors"

// Errors surfaced by the client core.
var (
	// ErrTerminated is returned by every public entry point once the owning
	// client has been terminated. Tasks accepted before termination still
	// drain to completion.
	ErrTerminated = errors.New("client is terminated")

	// ErrInvalidUpdate is returned when UpdateDoc is called with no
	// field/value pairs, an odd number of trailing arguments, or a field
	// path that is not a non-empty string.
	ErrInvalidUpdate = errors.New("invalid update arguments")

	// ErrMissingOrder is returned when a query consumed as "last N" carries
	// no explicit order term. The rejection happens before any cache or
	// network access.
	ErrMissingOrder = errors.New("limit-to-last query requires an explicit order term")

	// ErrPreconditionFailed is reported through the write's result cell when
	// the backend rejects a mutation's precondition.
	ErrPreconditionFailed = errors.New("write precondition failed")

	// ErrDocumentAbsent is returned when data is requested from a snapshot
	// of a document that does not exist.
	ErrDocumentAbsent = errors.New("document does not exist")

	// ErrNoCommitChannel is returned by New when the configured engine
	// cannot commit writes and no separate commit channel was given.
	ErrNoCommitChannel = errors.New("no commit channel configured")

	ErrInvalidPath  = errors.New("invalid document or collection path")
	ErrIDInUse      = errors.New("id already in use")
	ErrNoBaseURL    = errors.New("base url not set")
	ErrClosed       = errors.New("connection closed")
	ErrTimeout      = errors.New("timeout")
	ErrInvalidValue = errors.New("value cannot be encoded as document data")
)
