package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the merge guard and the
// task client return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: record does not exist or is soft-deleted
//   - ErrConflict: a concurrent writer already holds the resource
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: dependency temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
