// Package common defines shared constants and sentinel errors used across
// storyline components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// Permission errors, returned before the patch set is touched.
	ErrReadOnlyMode = errors.New("read-only: switch to edit mode to modify")
	ErrNotEditor    = errors.New("read-only: sign in with an account listed as editor")

	// Input errors.
	ErrInvalidPatchFile = errors.New("invalid overrides file")
	ErrInvalidID        = errors.New("invalid story id")
)
