package core

import "errors"

var (
	// ErrStoreUnavailable wraps any preference store failure
	ErrStoreUnavailable = errors.New("preference store unavailable")
	// ErrPreferenceNotFound is returned when deleting an unknown preference
	ErrPreferenceNotFound = errors.New("preference not found")
	// ErrModelUnavailable is returned when the external model cannot be reached
	ErrModelUnavailable = errors.New("external model unavailable")
	// ErrMalformedReply is returned when a model reply is not a usable verdict
	ErrMalformedReply = errors.New("malformed model reply")
	// ErrInvalidKey is returned for keys outside the review contract
	ErrInvalidKey = errors.New("unrecognized key")
	// ErrQuit signals an operator quit
	ErrQuit = errors.New("operator quit")
)
