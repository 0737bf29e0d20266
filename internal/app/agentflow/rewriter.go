package agentflow

import (
	"context"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// RewriterAgent normalizes a raw utterance into a clean, self-contained query.
type RewriterAgent struct {
	llm   domain.Completer
	model string
}

func NewRewriterAgent(llm domain.Completer, model string) *RewriterAgent {
	return &RewriterAgent{llm: llm, model: model}
}

func (a *RewriterAgent) Run(ctx context.Context, utterance string) (string, error) {
	return a.llm.Complete(ctx, a.model, []domain.Message{
		{Role: domain.RoleSystem, Content: rewriteSystemPrompt},
		{Role: domain.RoleUser, Content: utterance},
	}, 0)
}
