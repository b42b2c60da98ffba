package service

import "errors"

// ErrInvalidState is returned whenever a command is submitted from a state
// that doesn't list it as a valid transition in the service's state table.
var ErrInvalidState = errors.New("service: invalid state for command")
