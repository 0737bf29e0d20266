package domain

import "fmt"

// Conversation is created once per session-establishment event and never
// changes afterwards, except for its item log (owned by the ConversationStore).
type Conversation struct {
	ID        ConversationID    `json:"id"`
	CreatedAt Timestamp         `json:"created_at"`
	Metadata  map[string]string `json:"metadata"`
}

// ConversationItem is one append-only entry of a conversation log.
type ConversationItem struct {
	ID             ItemID            `json:"id"`
	ConversationID ConversationID    `json:"conversation_id"`
	Type           ItemType          `json:"type"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	CreatedAt      Timestamp         `json:"created_at"`
	Metadata       map[string]string `json:"metadata"`
}

// NewItem is the caller-supplied part of a ConversationItem.
type NewItem struct {
	Role     Role
	Content  string
	Metadata map[string]string
}

func (in NewItem) Validate() error {
	if !in.Role.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidRole, in.Role)
	}
	return nil
}

// ItemList is the listing envelope returned for a conversation log.
type ItemList struct {
	Object  string             `json:"object"`
	Data    []ConversationItem `json:"data"`
	FirstID *ItemID            `json:"first_id"`
	LastID  *ItemID            `json:"last_id"`
	HasMore bool               `json:"has_more"`
}

// NewItemList wraps items (oldest first) in a list envelope.
func NewItemList(items []ConversationItem) ItemList {
	list := ItemList{
		Object: "list",
		Data:   items,
	}
	if list.Data == nil {
		list.Data = []ConversationItem{}
	}
	if len(items) > 0 {
		first, last := items[0].ID, items[len(items)-1].ID
		list.FirstID = &first
		list.LastID = &last
	}
	return list
}

// DeletionRecord reports the outcome of deleting a conversation.
type DeletionRecord struct {
	ID      ConversationID `json:"id"`
	Object  string         `json:"object"`
	Deleted bool           `json:"deleted"`
}

// Message is a role-tagged prompt entry sent to a completion backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Citation is reserved for grounding attribution. Nothing populates it yet.
type Citation struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// Passage is a grounding text chunk stored in a similarity index.
type Passage struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}
