package statemachine

import "errors"

// Sentinel errors from the platform's error taxonomy that belong to the
// state machine; wrapped with %w so errors.Is keeps working through
// fmt.Errorf call sites.
var (
	ErrStateNotFound     = errors.New("state not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConfiguration     = errors.New("configuration error")
)
