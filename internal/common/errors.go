// Package common defines shared constants and sentinel errors used across
// the report gate server and the token admin tool. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Token store errors.
	ErrStoreUnavailable = errors.New("token store unavailable")
	ErrStoreCorrupt     = errors.New("token store corrupt")

	// Token manager errors.
	ErrTokenNotFound  = errors.New("token not found")
	ErrDuplicateToken = errors.New("duplicate token")

	// Input validation errors.
	ErrInvalidLabel      = errors.New("invalid label")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrInvalidDuration   = errors.New("invalid duration")

	// Request gate errors.
	ErrAccessDenied = errors.New("access denied")
)
