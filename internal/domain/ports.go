package domain

import "context"

// ConversationStore owns conversations and their item logs.
//
// Implementations must return snapshots from GetItems: appending to a
// conversation after the call must not change a slice already handed out.
type ConversationStore interface {
	CreateConversation(ctx context.Context, metadata map[string]string) (*Conversation, error)
	AddItem(ctx context.Context, id ConversationID, item NewItem) (*ConversationItem, error)
	GetItems(ctx context.Context, id ConversationID) ([]ConversationItem, error)
	DeleteConversation(ctx context.Context, id ConversationID) (bool, error)
}

// Completer is the text-completion capability. A nil error with empty text is
// a valid answer.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message, temperature float64) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity query and returns rows ordered most relevant
// first. Every row is expected to carry a "text" field.
type Searcher interface {
	Search(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}
