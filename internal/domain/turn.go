package domain

import (
	"fmt"
	"time"
)

// Role tags who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("domain: unknown role %q", s)
	}
	return r, nil
}

// Turn is a single immutable message in a user's conversation. Turns for a
// user are ordered by Timestamp, which is unique per user.
type Turn struct {
	UserID    string
	Timestamp time.Time
	Role      Role
	Content   string
}

// ChatMessage projects the turn to the shape consumed by the completion provider.
func (t Turn) ChatMessage() ChatMessage {
	return ChatMessage{Role: string(t.Role), Content: t.Content}
}
