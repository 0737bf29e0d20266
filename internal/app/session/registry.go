package session

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

// DefaultTTL is how long a session keeps pointing at its conversation.
const DefaultTTL = time.Hour

const defaultTopic = "voicechat"

type entry struct {
	conversationID domain.ConversationID
	expiresAt      time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.After(now)
}

// Registry maps caller-chosen session ids to conversations for a fixed TTL.
// Expiry is enforced lazily on access; CleanupExpired is an optional sweep.
type Registry struct {
	store domain.ConversationStore
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[domain.SessionID]*entry
}

type Option func(*Registry)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry backed by store. A non-positive ttl falls
// back to DefaultTTL.
func NewRegistry(store domain.ConversationStore, ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.SessionID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureSession returns the live conversation of sessionID, creating one when
// the session is unknown or expired. The conversation is created outside the
// lock; when two callers race, the first mapping installed wins and the
// loser's conversation is deleted.
func (r *Registry) EnsureSession(ctx context.Context, sessionID domain.SessionID) (domain.ConversationID, error) {
	ctx = observability.EnsureSessionID(ctx, string(sessionID))
	if id, ok := r.GetConversationID(sessionID); ok {
		return id, nil
	}

	conv, err := r.store.CreateConversation(ctx, map[string]string{"topic": defaultTopic})
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	now := r.now()
	if e, ok := r.entries[sessionID]; ok && !e.expired(now) {
		winner := e.conversationID
		r.mu.Unlock()

		if _, err := r.store.DeleteConversation(ctx, conv.ID); err != nil {
			observability.LoggerFromContext(ctx).Warn("failed to drop orphan conversation",
				"component", "session",
				"conversation_id", conv.ID,
				"error", err)
		}
		return winner, nil
	}
	r.entries[sessionID] = &entry{
		conversationID: conv.ID,
		expiresAt:      now.Add(r.ttl),
	}
	r.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("session established",
		"component", "session",
		"conversation_id", conv.ID)
	return conv.ID, nil
}

// GetConversationID returns the mapping only while it is live. An expired
// entry is removed as a side effect.
func (r *Registry) GetConversationID(sessionID domain.SessionID) (domain.ConversationID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return "", false
	}
	if e.expired(r.now()) {
		delete(r.entries, sessionID)
		return "", false
	}
	return e.conversationID, true
}

// Touch extends a live session to now+TTL. It reports false, and purges the
// entry, when the session is missing or expired.
func (r *Registry) Touch(sessionID domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.entries[sessionID]
	if !ok || e.expired(now) {
		delete(r.entries, sessionID)
		return false
	}
	e.expiresAt = now.Add(r.ttl)
	return true
}

// DeleteSession drops the mapping and deletes its conversation. Unknown
// sessions yield a record with Deleted=false and no error.
func (r *Registry) DeleteSession(ctx context.Context, sessionID domain.SessionID) (domain.DeletionRecord, error) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if !ok {
		return domain.DeletionRecord{Object: "conversation.deleted", Deleted: false}, nil
	}

	deleted, err := r.store.DeleteConversation(ctx, e.conversationID)
	if err != nil {
		return domain.DeletionRecord{}, err
	}
	return domain.DeletionRecord{
		ID:      e.conversationID,
		Object:  "conversation.deleted",
		Deleted: deleted,
	}, nil
}

// CleanupExpired removes every expired mapping and returns how many were
// removed. Conversations themselves stay in the store.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if e.expired(now) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Messages lists the items of the session's live conversation, or an empty
// list when the session has none.
func (r *Registry) Messages(ctx context.Context, sessionID domain.SessionID) (domain.ItemList, error) {
	convID, ok := r.GetConversationID(sessionID)
	if !ok {
		return domain.NewItemList(nil), nil
	}
	items, err := r.store.GetItems(ctx, convID)
	if err != nil {
		return domain.ItemList{}, err
	}
	return domain.NewItemList(items), nil
}

// Len returns the number of held mappings, expired ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
