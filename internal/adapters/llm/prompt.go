package llm

import (
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// Prompt is a message list in Gemini shape: system messages merged into one
// instruction and the rest as contents.
type Prompt struct {
	System   string
	Contents []*genai.Content
}

func BuildPrompt(messages []domain.Message) Prompt {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return Prompt{
		System:   strings.Join(system, "\n\n"),
		Contents: contents,
	}
}
