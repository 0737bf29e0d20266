package llm

import (
	"context"
	"strings"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// MockLLM is an offline Completer. It recognizes the turn stages by their
// system prompt and answers from the first context passage.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Complete(_ context.Context, _ string, messages []domain.Message, _ float64) (string, error) {
	var system, ctxText, user string
	for _, msg := range messages {
		switch {
		case msg.Role == domain.RoleSystem && strings.HasPrefix(msg.Content, "Context:\n"):
			ctxText = strings.TrimPrefix(msg.Content, "Context:\n")
		case msg.Role == domain.RoleSystem && system == "":
			system = msg.Content
		case msg.Role == domain.RoleUser:
			user = msg.Content
		}
	}

	switch {
	case strings.HasPrefix(system, "Rewrite"):
		return strings.TrimSpace(user), nil
	case strings.Contains(system, "promo-style opener"):
		return "Let me pull it up real quick.", nil
	case ctxText != "":
		first, _, _ := strings.Cut(ctxText, "\n\n")
		return "From the manual: " + first, nil
	default:
		return "I don't have that information.", nil
	}
}
