package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/voicechat/internal/adapters/llm"
	"github.com/PabloGalante/voicechat/internal/adapters/vectorstore"
	"github.com/PabloGalante/voicechat/internal/app/retrieval"
	"github.com/PabloGalante/voicechat/internal/domain"
)

func seed(t *testing.T, s *vectorstore.ChromemSearcher, emb *llm.HashEmbedder, texts ...string) {
	t.Helper()
	ctx := context.Background()
	docs := make([]domain.Passage, 0, len(texts))
	for i, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		docs = append(docs, domain.Passage{
			ID:        string(rune('a' + i)),
			Text:      text,
			Embedding: vec,
			Metadata:  map[string]string{"source": "manual.txt"},
		})
	}
	require.NoError(t, s.Add(ctx, docs))
}

func TestChromemSearchRanksBySimilarity(t *testing.T) {
	emb := llm.NewHashEmbedder(256)
	s, err := vectorstore.NewChromemSearcher(vectorstore.ChromemConfig{})
	require.NoError(t, err)
	seed(t, s, emb,
		"The Model X manual is available on the support page",
		"Bananas are rich in potassium",
		"Model X warranty lasts two years",
	)
	require.Equal(t, 3, s.Count())

	client := retrieval.NewClient(emb, s, 2)
	docs, err := client.Retrieve(context.Background(), "where is the model x manual", "", nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "The Model X manual is available on the support page", docs[0])
}

func TestChromemSearchClampsToCollectionSize(t *testing.T) {
	emb := llm.NewHashEmbedder(256)
	s, err := vectorstore.NewChromemSearcher(vectorstore.ChromemConfig{PersistPath: t.TempDir()})
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "manual")
	require.NoError(t, err)

	rows, err := s.Search(context.Background(), "", map[string]any{"question_embedding": vec, "k": 6})
	require.NoError(t, err)
	require.Empty(t, rows)

	seed(t, s, emb, "manual page")
	rows, err = s.Search(context.Background(), "", map[string]any{"question_embedding": vec, "k": 6})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "manual page", rows[0]["text"])
	require.Equal(t, "manual.txt", rows[0]["source"])
}

func TestChromemSearchRequiresEmbedding(t *testing.T) {
	s, err := vectorstore.NewChromemSearcher(vectorstore.ChromemConfig{})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "", map[string]any{"k": 3})
	require.Error(t, err)
}
