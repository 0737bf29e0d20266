package domain

import "time"

type SessionID string
type ConversationID string
type ItemID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles a conversation item may carry.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type ItemType string

const (
	ItemTypeMessage ItemType = "message"
)

type Timestamp = time.Time
