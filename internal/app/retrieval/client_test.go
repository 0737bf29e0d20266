package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/voicechat/internal/app/retrieval"
	"github.com/PabloGalante/voicechat/internal/domain"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

type stubSearcher struct {
	rows   []map[string]any
	err    error
	query  string
	params map[string]any
}

func (s *stubSearcher) Search(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	s.query = query
	s.params = params
	return s.rows, s.err
}

func TestRetrieveKeepsBackendOrderAndMergesK(t *testing.T) {
	searcher := &stubSearcher{rows: []map[string]any{
		{"text": "Model X manual: page 12", "score": 0.9},
		{"text": "Model X warranty", "score": 0.7},
	}}
	client := retrieval.NewClient(stubEmbedder{vec: []float32{0.1, 0.2}}, searcher, 6)

	opts := map[string]any{"index_name": "idx_child_embedding"}
	docs, err := client.Retrieve(context.Background(), "manual for model x", "CALL ...", opts)
	require.NoError(t, err)
	require.Equal(t, []string{"Model X manual: page 12", "Model X warranty"}, docs)

	require.Equal(t, "CALL ...", searcher.query)
	require.Equal(t, 6, searcher.params["k"])
	require.Equal(t, []float32{0.1, 0.2}, searcher.params["question_embedding"])
	require.Equal(t, "idx_child_embedding", searcher.params["index_name"])
	_, leaked := opts["k"]
	require.False(t, leaked, "caller options must not be mutated")
}

func TestRetrieveKeepsExplicitK(t *testing.T) {
	searcher := &stubSearcher{}
	client := retrieval.NewClient(stubEmbedder{vec: []float32{1}}, searcher, 6)

	_, err := client.Retrieve(context.Background(), "q", "query", map[string]any{"k": 3})
	require.NoError(t, err)
	require.Equal(t, 3, searcher.params["k"])
}

func TestRetrieveWrapsFailures(t *testing.T) {
	boom := errors.New("boom")

	client := retrieval.NewClient(stubEmbedder{err: boom}, &stubSearcher{}, 6)
	docs, err := client.Retrieve(context.Background(), "q", "query", nil)
	require.Nil(t, docs)
	require.True(t, domain.IsRetrieval(err))
	require.ErrorIs(t, err, boom)

	client = retrieval.NewClient(stubEmbedder{vec: []float32{1}}, &stubSearcher{err: boom}, 6)
	_, err = client.Retrieve(context.Background(), "q", "query", nil)
	require.True(t, domain.IsRetrieval(err))

	client = retrieval.NewClient(stubEmbedder{vec: []float32{1}}, &stubSearcher{rows: []map[string]any{{"score": 1.0}}}, 6)
	_, err = client.Retrieve(context.Background(), "q", "query", nil)
	require.True(t, domain.IsRetrieval(err))
}
