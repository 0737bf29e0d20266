package agentflow

import "github.com/PabloGalante/voicechat/internal/domain"

type EventType string

const (
	EventOpener    EventType = "opener"
	EventRetrieval EventType = "retrieval"
	EventFinal     EventType = "final"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// Event is one stage notification of a streamed turn.
type Event struct {
	Type EventType
	// Text carries the opener or final answer.
	Text string
	// Docs and Error describe a retrieval outcome.
	Docs  int
	Error string
	// Message carries a fatal failure description.
	Message string
}

// Data renders the event payload in its wire shape.
func (e Event) Data() map[string]any {
	switch e.Type {
	case EventOpener, EventFinal:
		return map[string]any{"text": e.Text}
	case EventRetrieval:
		data := map[string]any{"docs": e.Docs}
		if e.Error != "" {
			data["error"] = e.Error
		}
		return data
	case EventError:
		return map[string]any{"message": e.Message}
	default:
		return map[string]any{}
	}
}

// TurnOptions are per-request overrides. Zero values select the defaults.
type TurnOptions struct {
	Temperature *float64
	TopK        int
}

type TurnInput struct {
	SessionID domain.SessionID
	Text      string
	Options   TurnOptions
}

type TurnResult struct {
	AssistantText string            `json:"assistant_text"`
	Opener        string            `json:"opener"`
	Rewrite       string            `json:"rewrite"`
	Citations     []domain.Citation `json:"citations"`
}
