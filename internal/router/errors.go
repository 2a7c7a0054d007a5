package router

import (
	"fmt"

	"classhub/pkg/types"
)

// Router-specific error types
var (
	ErrRateLimitExceeded = fmt.Errorf("%w: rate limit exceeded", types.ErrSend)
	ErrMissingSender     = fmt.Errorf("%w: sender is required", types.ErrSend)
)
