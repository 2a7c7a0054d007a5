package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrBusUnavailable = errors.New("message bus is not running")
)
