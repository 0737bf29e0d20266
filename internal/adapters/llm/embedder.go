package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	defaultCacheSize      = 10000
	maxEmbedBatch         = 100
)

type EmbedderConfig struct {
	OpenAIConfig
	Model     string
	CacheSize int
}

// OpenAIEmbedder implements domain.Embedder on the embeddings endpoint and
// memoizes vectors by input text.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	cache  *lru.Cache[string, []float32]
}

func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &OpenAIEmbedder{
		client: newOpenAIClient(cfg.OpenAIConfig),
		model:  cfg.Model,
		cache:  cache,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds up to 100 texts, serving cached ones locally.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxEmbedBatch {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), maxEmbedBatch)
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			results[i] = cached
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: missTexts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(missTexts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(missTexts))
	}

	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(missIdx) {
			return nil, fmt.Errorf("openai embeddings: invalid index %d", item.Index)
		}
		idx := missIdx[item.Index]
		e.cache.Add(texts[idx], item.Embedding)
		results[idx] = item.Embedding
	}
	return results, nil
}
