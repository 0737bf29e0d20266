package agentflow

import "github.com/PabloGalante/voicechat/internal/domain"

// DefaultMaxHistoryItems bounds the history fed to the answer stage.
const DefaultMaxHistoryItems = 12

// historyMessages keeps non-empty user/assistant messages and returns the
// last limit of them, oldest first. limit <= 0 keeps everything.
func historyMessages(items []domain.ConversationItem, limit int) []domain.Message {
	msgs := make([]domain.Message, 0, len(items))
	for _, it := range items {
		if it.Type != domain.ItemTypeMessage || it.Content == "" {
			continue
		}
		if it.Role != domain.RoleUser && it.Role != domain.RoleAssistant {
			continue
		}
		msgs = append(msgs, domain.Message{Role: it.Role, Content: it.Content})
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}
