// Package domain holds the sentinel errors shared by every layer. Services
// wrap them, stores translate driver errors into them, and the HTTP layer
// maps them onto status codes.
package domain

import "errors"

var (
	// ErrNotFound reports that the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports an optimistic-locking collision: the row changed
	// between read and write.
	ErrConflict = errors.New("conflict: resource was modified by another request")

	// ErrValidation reports input rejected by domain rules. Wrap it with
	// fmt.Errorf("reason: %w", domain.ErrValidation) so handlers can
	// surface the reason.
	ErrValidation = errors.New("validation failed")
)
