package retrieval

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

// DefaultTopK is merged into the search parameters as "k" when absent.
const DefaultTopK = 6

// Client fetches grounding passages for a question: it embeds the question
// and runs the similarity query with the vector as "question_embedding".
type Client struct {
	embedder domain.Embedder
	searcher domain.Searcher
	topK     int
}

func NewClient(embedder domain.Embedder, searcher domain.Searcher, topK int) *Client {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Client{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
	}
}

// Retrieve returns the "text" of every result row in backend order. Any
// failure is reported as a *domain.RetrievalError and no passages are
// returned.
func (c *Client) Retrieve(ctx context.Context, question, query string, options map[string]any) ([]string, error) {
	log := observability.LoggerFromContext(ctx).With("component", "retrieval")
	start := time.Now()

	params := maps.Clone(options)
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["k"]; !ok {
		params["k"] = c.topK
	}

	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return nil, &domain.RetrievalError{Err: fmt.Errorf("embed question: %w", err)}
	}
	params["question_embedding"] = vec

	rows, err := c.searcher.Search(ctx, query, params)
	if err != nil {
		return nil, &domain.RetrievalError{Err: fmt.Errorf("similarity search: %w", err)}
	}

	docs := make([]string, 0, len(rows))
	for i, row := range rows {
		text, ok := row["text"].(string)
		if !ok {
			return nil, &domain.RetrievalError{Err: fmt.Errorf("row %d has no text field", i)}
		}
		docs = append(docs, text)
	}

	log.Debug("retrieve ok", "docs", len(docs), "elapsed_ms", time.Since(start).Milliseconds())
	return docs, nil
}
