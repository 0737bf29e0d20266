package completion

import (
	"context"
	"time"

	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

// Client issues exactly one backend request per call. Retrying is left to
// callers.
type Client struct {
	backend domain.Completer
	metrics *observability.Metrics
}

func NewClient(backend domain.Completer, metrics *observability.Metrics) *Client {
	return &Client{backend: backend, metrics: metrics}
}

// Complete sends messages to model. Backend failures come back as
// *domain.CompletionError; an empty completion is not an error.
func (c *Client) Complete(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	log := observability.LoggerFromContext(ctx).With(
		"component", "llm",
		"model", model,
		"temperature", temperature,
	)
	start := time.Now()

	out, err := c.backend.Complete(ctx, model, messages, temperature)
	c.metrics.ObserveStage("llm", start, err)
	if err != nil {
		log.Error("completion failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", &domain.CompletionError{Model: model, Err: err}
	}

	log.Debug("completion ok", "out_len", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}
