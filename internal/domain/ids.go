package domain

import (
	"strings"

	"github.com/google/uuid"
)

func hexID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewConversationID() ConversationID {
	return ConversationID(hexID("conv_"))
}

func NewItemID() ItemID {
	return ItemID(hexID("citem_"))
}

func NewSessionID() SessionID {
	return SessionID(hexID("sess_"))
}

// NewRequestID returns a short id used to correlate log lines of one request.
func NewRequestID() string {
	return hexID("req_")[:len("req_")+12]
}
