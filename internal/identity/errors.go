package identity

import (
	"errors"
	"fmt"

	"classhub/pkg/types"
)

var (
	ErrMissingSecret = errors.New("token signing secret is required")
	ErrMissingToken  = fmt.Errorf("%w: token is required", types.ErrAuth)
)
