package agentflow

import (
	"context"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// AnswerInput is everything the final answer is grounded on.
type AnswerInput struct {
	Rewrite     string
	Opener      string
	Context     string
	History     []domain.Message
	Temperature float64
	// Strict adds the verbatim phone-number rule.
	Strict bool
}

// AnswererAgent writes the grounded final reply.
type AnswererAgent struct {
	llm   domain.Completer
	model string
}

func NewAnswererAgent(llm domain.Completer, model string) *AnswererAgent {
	return &AnswererAgent{llm: llm, model: model}
}

func (a *AnswererAgent) Run(ctx context.Context, in AnswerInput) (string, error) {
	return a.llm.Complete(ctx, a.model, BuildAnswerMessages(in), in.Temperature)
}

// BuildAnswerMessages lays out the answer prompt: preamble, optional context,
// history, the opener already sent, then the rewritten question.
func BuildAnswerMessages(in AnswerInput) []domain.Message {
	preamble := answerPreamble
	if in.Strict {
		preamble += phoneNumberRule
	}

	msgs := make([]domain.Message, 0, len(in.History)+4)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: preamble})
	if in.Context != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: contextPrefix + in.Context})
	}
	msgs = append(msgs, in.History...)
	if in.Opener != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleAssistant, Content: in.Opener})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: in.Rewrite})
	return msgs
}
