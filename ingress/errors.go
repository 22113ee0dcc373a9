package ingress

import "errors"

// Dispatcher errors.
var (
	// ErrRejected indicates a session's executor rejected a submit
	// between the caller's is_active check and the submit call.
	ErrRejected = errors.New("ingress: executor rejected submit")
)
