package conversation

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/PabloGalante/voicechat/internal/app/agentflow"
	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

// ErrEmptyText rejects a turn without an utterance.
var ErrEmptyText = errors.New("text is required")

type Sessions interface {
	EnsureSession(ctx context.Context, sessionID domain.SessionID) (domain.ConversationID, error)
	DeleteSession(ctx context.Context, sessionID domain.SessionID) (domain.DeletionRecord, error)
	Messages(ctx context.Context, sessionID domain.SessionID) (domain.ItemList, error)
	CleanupExpired() int
}

type Turns interface {
	HandleTurn(ctx context.Context, in agentflow.TurnInput) (*agentflow.TurnResult, error)
	HandleTurnStream(ctx context.Context, in agentflow.TurnInput) iter.Seq[agentflow.Event]
}

// Service is the entry point used by transports.
type Service struct {
	sessions     Sessions
	orchestrator Turns
	newID        func() domain.SessionID
}

func NewService(sessions Sessions, orchestrator Turns) *Service {
	return &Service{
		sessions:     sessions,
		orchestrator: orchestrator,
		newID:        domain.NewSessionID,
	}
}

type StartSessionOutput struct {
	SessionID      domain.SessionID
	ConversationID domain.ConversationID
}

func (s *Service) StartSession(ctx context.Context) (*StartSessionOutput, error) {
	sid := s.newID()
	ctx = observability.EnsureSessionID(ctx, string(sid))
	log := observability.LoggerFromContext(ctx).With("component", "session")

	convID, err := s.sessions.EnsureSession(ctx, sid)
	if err != nil {
		log.Error("failed to start session", "error", err)
		return nil, err
	}

	log.Info("session started", "conversation_id", convID)
	return &StartSessionOutput{SessionID: sid, ConversationID: convID}, nil
}

type SendMessageInput struct {
	SessionID domain.SessionID
	Text      string
	Options   agentflow.TurnOptions
}

func (in SendMessageInput) turn() (agentflow.TurnInput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return agentflow.TurnInput{}, ErrEmptyText
	}
	return agentflow.TurnInput{SessionID: in.SessionID, Text: in.Text, Options: in.Options}, nil
}

// SendMessage runs a whole turn and returns its outcome.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*agentflow.TurnResult, error) {
	turn, err := in.turn()
	if err != nil {
		return nil, err
	}
	ctx = observability.WithSessionID(ctx, string(in.SessionID))
	return s.orchestrator.HandleTurn(ctx, turn)
}

// StreamMessage returns the stage events of a turn. The turn starts when the
// sequence is iterated.
func (s *Service) StreamMessage(ctx context.Context, in SendMessageInput) (iter.Seq[agentflow.Event], error) {
	turn, err := in.turn()
	if err != nil {
		return nil, err
	}
	ctx = observability.WithSessionID(ctx, string(in.SessionID))
	return s.orchestrator.HandleTurnStream(ctx, turn), nil
}

// GetSessionTimeline lists the items of the session's live conversation.
func (s *Service) GetSessionTimeline(ctx context.Context, sessionID domain.SessionID) (domain.ItemList, error) {
	ctx = observability.EnsureSessionID(ctx, string(sessionID))
	log := observability.LoggerFromContext(ctx).With("component", "session")

	list, err := s.sessions.Messages(ctx, sessionID)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return domain.ItemList{}, err
	}

	log.Debug("fetched session timeline", "message_count", len(list.Data))
	return list, nil
}

func (s *Service) EndSession(ctx context.Context, sessionID domain.SessionID) (domain.DeletionRecord, error) {
	ctx = observability.EnsureSessionID(ctx, string(sessionID))
	log := observability.LoggerFromContext(ctx).With("component", "session")

	rec, err := s.sessions.DeleteSession(ctx, sessionID)
	if err != nil {
		log.Error("failed to end session", "error", err)
		return domain.DeletionRecord{}, err
	}

	log.Info("session ended", "deleted", rec.Deleted)
	return rec, nil
}

func (s *Service) CleanupExpired(ctx context.Context) int {
	n := s.sessions.CleanupExpired()
	if n > 0 {
		observability.LoggerFromContext(ctx).Info("expired sessions purged", "component", "session", "count", n)
	}
	return n
}
