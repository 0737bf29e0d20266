package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// Store keeps conversations in Firestore. Items live in a sub-collection and
// carry a per-conversation sequence number that defines their order.
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store for the given project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) conversationsCol() *firestore.CollectionRef {
	return s.client.Collection("conversations")
}

func (s *Store) conversationDoc(id domain.ConversationID) *firestore.DocumentRef {
	return s.conversationsCol().Doc(string(id))
}

func (s *Store) itemsCol(id domain.ConversationID) *firestore.CollectionRef {
	return s.conversationDoc(id).Collection("items")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type conversationDoc struct {
	CreatedAt time.Time         `firestore:"created_at"`
	Metadata  map[string]string `firestore:"metadata"`
	NextSeq   int64             `firestore:"next_seq"`
}

type itemDoc struct {
	Seq       int64             `firestore:"seq"`
	Type      string            `firestore:"type"`
	Role      string            `firestore:"role"`
	Content   string            `firestore:"content"`
	CreatedAt time.Time         `firestore:"created_at"`
	Metadata  map[string]string `firestore:"metadata"`
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateConversation(ctx context.Context, metadata map[string]string) (*domain.Conversation, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	conv := &domain.Conversation{
		ID:        domain.NewConversationID(),
		CreatedAt: s.now(),
		Metadata:  metadata,
	}

	doc := conversationDoc{
		CreatedAt: conv.CreatedAt,
		Metadata:  conv.Metadata,
	}
	if _, err := s.conversationDoc(conv.ID).Create(ctx, doc); err != nil {
		return nil, &domain.StoreError{Op: "create conversation", Err: err}
	}
	return conv, nil
}

func (s *Store) AddItem(ctx context.Context, id domain.ConversationID, in domain.NewItem) (*domain.ConversationItem, error) {
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

	convRef := s.conversationDoc(id)
	itemRef := s.itemsCol(id).Doc(string(item.ID))

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(convRef)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}

		var conv conversationDoc
		if err := snap.DataTo(&conv); err != nil {
			return fmt.Errorf("decode conversationDoc: %w", err)
		}

		if err := tx.Update(convRef, []firestore.Update{{Path: "next_seq", Value: conv.NextSeq + 1}}); err != nil {
			return err
		}
		return tx.Create(itemRef, itemDoc{
			Seq:       conv.NextSeq,
			Type:      string(item.Type),
			Role:      string(item.Role),
			Content:   item.Content,
			CreatedAt: item.CreatedAt,
			Metadata:  item.Metadata,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Op: "add item", Err: err}
	}
	return item, nil
}

func (s *Store) GetItems(ctx context.Context, id domain.ConversationID) ([]domain.ConversationItem, error) {
	if _, err := s.conversationDoc(id).Get(ctx); err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Op: "get conversation", Err: err}
	}

	iter := s.itemsCol(id).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := []domain.ConversationItem{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, &domain.StoreError{Op: "list items", Err: err}
		}

		var doc itemDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, &domain.StoreError{Op: "decode item", Err: err}
		}

		out = append(out, domain.ConversationItem{
			ID:             domain.ItemID(snap.Ref.ID),
			ConversationID: id,
			Type:           domain.ItemType(doc.Type),
			Role:           domain.Role(doc.Role),
			Content:        doc.Content,
			CreatedAt:      doc.CreatedAt,
			Metadata:       doc.Metadata,
		})
	}
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) (bool, error) {
	convRef := s.conversationDoc(id)
	if _, err := convRef.Get(ctx); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &domain.StoreError{Op: "get conversation", Err: err}
	}

	bw := s.client.BulkWriter(ctx)
	var jobs []writeJob
	iter := s.itemsCol(id).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			bw.End()
			return false, &domain.StoreError{Op: "list items", Err: err}
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return false, &domain.StoreError{Op: "delete item", Err: err}
		}
		jobs = append(jobs, job)
	}
	job, err := bw.Delete(convRef)
	if err != nil {
		bw.End()
		return false, &domain.StoreError{Op: "delete conversation", Err: err}
	}
	jobs = append(jobs, job)
	bw.End()

	if err := jobsErr(jobs); err != nil {
		return false, &domain.StoreError{Op: "delete conversation", Err: err}
	}
	return true, nil
}

// writeJob is the result side of a *firestore.BulkWriterJob.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

// jobsErr joins the failures of flushed bulk writes.
func jobsErr(jobs []writeJob) error {
	var errs []error
	for _, j := range jobs {
		if _, err := j.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
