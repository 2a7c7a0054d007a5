package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// AccessChecker decides whether a user may read or write a class's chat
type AccessChecker interface {
	// CanAccess returns the class when userID is its mentor or an enrolled participant
	CanAccess(ctx context.Context, classID, userID string) (*types.ClassSession, error)
}

// StatusNotifier is told about every committed lifecycle transition
type StatusNotifier interface {
	NotifyStatus(class *types.ClassSession)
}
