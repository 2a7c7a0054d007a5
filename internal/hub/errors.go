package hub

import (
	"errors"
	"fmt"

	"classhub/pkg/interfaces"
)

// Hub-specific error types
var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = fmt.Errorf("hub is not running: %w", interfaces.ErrBusUnavailable)
	ErrInvalidClassID     = errors.New("class id is required")
	ErrInvalidMessage     = errors.New("message must carry id and class id")
	ErrPublishChannelFull = errors.New("publish channel is full")
)
