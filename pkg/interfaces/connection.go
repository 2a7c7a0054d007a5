package interfaces

// Connection represents a WebSocket client connection interface
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps the socket transport out of the chat and lifecycle logic
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetUserID returns the connected user's ID
	GetUserID() string

	// GetRole returns the user's role ("mentor" or "participant")
	GetRole() string

	// GetClassID returns the class the connection is currently viewing, or ""
	GetClassID() string

	// IsAuthenticated returns true once credentials were set
	IsAuthenticated() bool

	// SetCredentials sets user credentials after token authentication
	SetCredentials(userID, role string) error
}
