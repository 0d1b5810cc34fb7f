package models

import "errors"

// Store level errors. Typed outcomes cover expected scan results; these cover
// the store itself misbehaving.
var (
	// ErrNotFound is returned by point reads when the document does not
	// exist. Callers map it to their own outcome (TicketNotFound,
	// UnknownUser) rather than surfacing it.
	ErrNotFound = errors.New("document not found")

	// ErrTransientStore marks a retryable connectivity failure. Validation
	// reads may be retried with backoff; the conditional commit must not be
	// blindly retried after an ambiguous failure.
	ErrTransientStore = errors.New("transient store error")

	// ErrTooManyIDs is returned when a membership query exceeds the store's
	// id-filter limit. The subscription manager batches below the limit, so
	// seeing this means a caller bypassed the batching.
	ErrTooManyIDs = errors.New("too many ids for membership query")
)
