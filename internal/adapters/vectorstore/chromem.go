package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"github.com/PabloGalante/voicechat/internal/domain"
)

const defaultCollection = "manuals"

type ChromemConfig struct {
	// PersistPath is a directory; empty keeps the collection in memory.
	PersistPath string
	Collection  string
}

// ChromemSearcher serves similarity search from an in-process chromem-go
// collection. The query template is ignored; results are ranked by cosine
// similarity to "question_embedding".
type ChromemSearcher struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewChromemSearcher(cfg ChromemConfig) (*ChromemSearcher, error) {
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(cfg.PersistPath, "chromem.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// documents always arrive with embeddings, so chromem never embeds
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("chromem: documents must carry embeddings")
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemSearcher{db: db, collection: collection}, nil
}

func (s *ChromemSearcher) Add(ctx context.Context, docs []domain.Passage) error {
	for _, doc := range docs {
		err := s.collection.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *ChromemSearcher) Count() int {
	return s.collection.Count()
}

// Search reads "question_embedding" ([]float32) and "k" from params and
// returns rows {text, score, id, source}, most similar first.
func (s *ChromemSearcher) Search(ctx context.Context, _ string, params map[string]any) ([]map[string]any, error) {
	emb, ok := params["question_embedding"].([]float32)
	if !ok || len(emb) == 0 {
		return nil, fmt.Errorf("chromem: question_embedding missing")
	}
	k, err := intParam(params["k"])
	if err != nil {
		return nil, fmt.Errorf("chromem: %w", err)
	}

	// chromem rejects nResults above the collection size
	n := min(k, s.collection.Count())
	if n <= 0 {
		return []map[string]any{}, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, emb, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	rows := make([]map[string]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, map[string]any{
			"id":     r.ID,
			"text":   r.Content,
			"score":  float64(r.Similarity),
			"source": r.Metadata["source"],
		})
	}
	return rows, nil
}

func intParam(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case nil:
		return 0, fmt.Errorf("k missing")
	default:
		return 0, fmt.Errorf("k has unsupported type %T", v)
	}
}
