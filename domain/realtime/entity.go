// Package realtime defines the core entities of the real-time layer:
// the identity bound to a connection at handshake time, the connection
// abstraction the hub fans out to, and the room naming convention.
package realtime

// Identity is the user identity bound to a connection after a successful
// handshake. A connection never processes events without one.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Connection is one live transport session. Implementations must make
// Send safe for concurrent use; the hub fans out to many connections
// without coordinating writers.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Room keys follow the kind:id convention. The hub treats them as opaque
// strings; only the router interprets the kind.
func UserRoom(userID string) string { return "user:" + userID }

func ReelRoom(reelID string) string { return "reel:" + reelID }

func ConversationRoom(convID string) string { return "conversation:" + convID }
