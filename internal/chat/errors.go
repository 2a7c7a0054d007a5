package chat

import (
	"errors"
	"fmt"

	"classhub/pkg/types"
)

// View errors
var (
	ErrViewClosed     = errors.New("chat view is closed")
	ErrNoActiveClass  = fmt.Errorf("%w: no class selected", types.ErrInvalidOperation)
	ErrInvalidClassID = fmt.Errorf("%w: class id is required", types.ErrValidation)
)

// fetchError tags a read failure with the fetch category exactly once
func fetchError(err error) error {
	if errors.Is(err, types.ErrFetch) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrFetch, err)
}

// sendError tags a write failure with the send category exactly once
func sendError(err error) error {
	if errors.Is(err, types.ErrSend) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrSend, err)
}
