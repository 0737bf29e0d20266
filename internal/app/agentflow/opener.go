package agentflow

import (
	"context"

	"github.com/PabloGalante/voicechat/internal/domain"
)

const openerTemperature = 0.7

// OpenerAgent produces the short acknowledgement sent while the answer is
// still being prepared. It must not answer the question.
type OpenerAgent struct {
	llm   domain.Completer
	model string
}

func NewOpenerAgent(llm domain.Completer, model string) *OpenerAgent {
	return &OpenerAgent{llm: llm, model: model}
}

func (a *OpenerAgent) Run(ctx context.Context, rewrite string) (string, error) {
	return a.llm.Complete(ctx, a.model, []domain.Message{
		{Role: domain.RoleSystem, Content: openerSystemPrompt},
		{Role: domain.RoleUser, Content: rewrite},
	}, openerTemperature)
}
