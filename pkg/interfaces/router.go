package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// HistoryLoader reads a class's message history with author identities
type HistoryLoader interface {
	GetClassHistory(ctx context.Context, classID string) ([]*types.ChatMessage, error)
}

// AuthorLookup resolves a user id to a display identity
type AuthorLookup interface {
	GetAuthor(ctx context.Context, userID string) (*types.Author, error)
}

// MessageSender validates, persists and publishes a chat message
// FUNCTIONAL DISCOVERY: Returns the stored row; callers never insert it locally,
// the subscription echoes it back
type MessageSender interface {
	Send(ctx context.Context, classID, userID, content string) (*types.Message, error)
}
