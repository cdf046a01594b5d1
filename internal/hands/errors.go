package hands

import "errors"

// Sentinel errors returned by Registry's mutating operations.
var (
	// ErrNotFound indicates the hand definition id is unknown.
	ErrNotFound = errors.New("hand: definition not found")

	// ErrInstanceNotFound indicates the instance id is unknown.
	ErrInstanceNotFound = errors.New("hand: instance not found")

	// ErrAlreadyActive indicates a hand already has an Active instance.
	ErrAlreadyActive = errors.New("hand: already active")
)
