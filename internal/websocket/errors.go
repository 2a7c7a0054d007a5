package websocket

import (
	"errors"
	"fmt"

	"classhub/pkg/types"
)

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
)

// Frame-related errors
var (
	ErrInvalidFrame = fmt.Errorf("%w: frame must be a JSON object with a known type", types.ErrValidation)
	ErrMissingClass = fmt.Errorf("%w: class_id is required", types.ErrValidation)
)
