package core

import "errors"

// Sentinel errors shared across the service. Callers classify failures with
// errors.Is; wrapping adds the operation context.
var (
	// ErrValidation marks a malformed or unusable request.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing session or collection.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks a failure in the session store or vector index.
	ErrStorage = errors.New("storage error")

	// ErrUpstreamTimeout marks an LLM or embedding call that ran out of time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamFailure marks a failed LLM or embedding call.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrUnsupportedFormat marks an upload with a file type the loaders
	// cannot extract.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
