package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// ConversationStore is the in-memory domain.ConversationStore. Data lives for
// the lifetime of the process only.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[domain.ConversationID]*domain.Conversation
	items         map[domain.ConversationID][]domain.ConversationItem
	now           func() time.Time
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[domain.ConversationID]*domain.Conversation),
		items:         make(map[domain.ConversationID][]domain.ConversationItem),
		now:           time.Now,
	}
}

func (s *ConversationStore) CreateConversation(_ context.Context, metadata map[string]string) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		ID:        domain.NewConversationID(),
		CreatedAt: s.now(),
		Metadata:  cloneMetadata(metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv
	s.items[conv.ID] = []domain.ConversationItem{}

	out := *conv
	out.Metadata = cloneMetadata(conv.Metadata)
	return &out, nil
}

func (s *ConversationStore) AddItem(_ context.Context, id domain.ConversationID, in domain.NewItem) (*domain.ConversationItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	item := domain.ConversationItem{
		ID:             domain.NewItemID(),
		ConversationID: id,
		Type:           domain.ItemTypeMessage,
		Role:           in.Role,
		Content:        in.Content,
		CreatedAt:      s.now(),
		Metadata:       cloneMetadata(in.Metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return nil, domain.ErrNotFound
	}
	s.items[id] = append(s.items[id], item)

	out := item
	out.Metadata = cloneMetadata(item.Metadata)
	return &out, nil
}

func (s *ConversationStore) GetItems(_ context.Context, id domain.ConversationID) ([]domain.ConversationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[id]; !ok {
		return nil, domain.ErrNotFound
	}

	log := s.items[id]
	out := make([]domain.ConversationItem, len(log))
	for i, item := range log {
		out[i] = item
		out[i].Metadata = cloneMetadata(item.Metadata)
	}
	return out, nil
}

func (s *ConversationStore) DeleteConversation(_ context.Context, id domain.ConversationID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.conversations[id]
	delete(s.conversations, id)
	delete(s.items, id)
	return existed, nil
}

// Len returns the number of stored conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
