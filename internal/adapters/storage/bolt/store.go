package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PabloGalante/voicechat/internal/domain"
)

var (
	conversationsBucket = []byte("conversations")
	itemsBucket         = []byte("items")
)

// Store is a single-file domain.ConversationStore on top of bbolt. Each
// conversation gets a nested bucket under "items" whose keys are big-endian
// sequence numbers, so cursor order is insertion order.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(conversationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(itemsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateConversation(_ context.Context, metadata map[string]string) (*domain.Conversation, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	conv := &domain.Conversation{
		ID:        domain.NewConversationID(),
		CreatedAt: s.now(),
		Metadata:  metadata,
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return nil, &domain.StoreError{Op: "encode conversation", Err: err}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(conversationsBucket).Put([]byte(conv.ID), raw); err != nil {
			return err
		}
		_, err := tx.Bucket(itemsBucket).CreateBucket([]byte(conv.ID))
		return err
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "create conversation", Err: err}
	}
	return conv, nil
}

func (s *Store) AddItem(_ context.Context, id domain.ConversationID, in domain.NewItem) (*domain.ConversationItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	item := &domain.ConversationItem{
		ID:             domain.NewItemID(),
		ConversationID: id,
		Type:           domain.ItemTypeMessage,
		Role:           in.Role,
		Content:        in.Content,
		CreatedAt:      s.now(),
		Metadata:       in.Metadata,
	}
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, &domain.StoreError{Op: "encode item", Err: err}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(itemsBucket).Bucket([]byte(id))
		if b == nil {
			return domain.ErrNotFound
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), raw)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Op: "add item", Err: err}
	}
	return item, nil
}

func (s *Store) GetItems(_ context.Context, id domain.ConversationID) ([]domain.ConversationItem, error) {
	out := []domain.ConversationItem{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(itemsBucket).Bucket([]byte(id))
		if b == nil {
			return domain.ErrNotFound
		}
		return b.ForEach(func(_, v []byte) error {
			var item domain.ConversationItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode item: %w", err)
			}
			out = append(out, item)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Op: "get items", Err: err}
	}
	return out, nil
}

func (s *Store) DeleteConversation(_ context.Context, id domain.ConversationID) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		if convs.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		if err := convs.Delete([]byte(id)); err != nil {
			return err
		}
		err := tx.Bucket(itemsBucket).DeleteBucket([]byte(id))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, &domain.StoreError{Op: "delete conversation", Err: err}
	}
	return existed, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
