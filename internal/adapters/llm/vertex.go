package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/voicechat/internal/domain"
)

type VertexConfig struct {
	Project  string
	Location string
}

type VertexClient struct {
	client *genai.Client
}

// NewVertexClient creates a Completer backed by Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex: gcp project and location must be set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{client: client}, nil
}

// Complete implements domain.Completer using Vertex AI.
func (v *VertexClient) Complete(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	prompt := BuildPrompt(messages)

	temp := float32(temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if prompt.System != "" {
		// the role here is usually RoleUser, not "system"
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	res, err := v.client.Models.GenerateContent(ctx, model, prompt.Contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}
	return res.Text(), nil
}
