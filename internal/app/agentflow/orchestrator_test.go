package agentflow_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/voicechat/internal/adapters/storage/memory"
	"github.com/PabloGalante/voicechat/internal/app/agentflow"
	"github.com/PabloGalante/voicechat/internal/app/completion"
	"github.com/PabloGalante/voicechat/internal/app/session"
	"github.com/PabloGalante/voicechat/internal/domain"
)

const (
	modelRewrite = "rewrite-model"
	modelOpener  = "opener-model"
	modelAnswer  = "answer-model"
)

type llmCall struct {
	model       string
	messages    []domain.Message
	temperature float64
}

// scriptedLLM answers per model and records every call.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []llmCall
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		replies: map[string]string{
			modelRewrite: "Where is the manual for Model X?",
			modelOpener:  "Let me pull it up real quick.",
			modelAnswer:  "The Model X manual is on page 12.",
		},
		errs: map[string]error{},
	}
}

func (s *scriptedLLM) Complete(_ context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, llmCall{model: model, messages: messages, temperature: temperature})
	if err := s.errs[model]; err != nil {
		return "", err
	}
	return s.replies[model], nil
}

func (s *scriptedLLM) lastCall(model string) (llmCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].model == model {
			return s.calls[i], true
		}
	}
	return llmCall{}, false
}

type stubRetriever struct {
	docs    []string
	err     error
	release chan struct{}

	mu       sync.Mutex
	question string
	options  map[string]any
}

func (r *stubRetriever) Retrieve(_ context.Context, question, _ string, options map[string]any) ([]string, error) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.question = question
	r.options = options
	r.mu.Unlock()
	return r.docs, r.err
}

type fixture struct {
	llm      *scriptedLLM
	store    *memory.ConversationStore
	registry *session.Registry
	orch     *agentflow.Orchestrator
}

func newFixture(t *testing.T, retriever agentflow.Retriever) *fixture {
	t.Helper()

	llm := newScriptedLLM()
	store := memory.NewConversationStore()
	registry := session.NewRegistry(store, 0)

	cfg := agentflow.Config{
		Models: agentflow.Models{Rewrite: modelRewrite, Opener: modelOpener, Answer: modelAnswer},
		TopK:   6,
	}
	deps := agentflow.Deps{
		Sessions: registry,
		Store:    store,
		LLM:      completion.NewClient(llm, nil),
	}
	if retriever != nil {
		cfg.Query = "CALL db.index.vector.queryNodes(...)"
		cfg.RetrievalOptions = map[string]any{"index_name": "idx_child_embedding"}
		deps.Retriever = retriever
	}

	return &fixture{
		llm:      llm,
		store:    store,
		registry: registry,
		orch:     agentflow.NewOrchestrator(deps, cfg),
	}
}

func (f *fixture) items(t *testing.T, sid domain.SessionID) []domain.ConversationItem {
	t.Helper()
	list, err := f.registry.Messages(context.Background(), sid)
	require.NoError(t, err)
	return list.Data
}

func collect(seq iter.Seq[agentflow.Event]) []agentflow.Event {
	var out []agentflow.Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []agentflow.Event) []agentflow.EventType {
	types := make([]agentflow.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestHandleTurnManualLookup(t *testing.T) {
	retriever := &stubRetriever{docs: []string{
		"Model X manual: page 12",
		"Model X warranty: 2 years",
		"Model Y manual: page 3",
	}}
	f := newFixture(t, retriever)

	res, err := f.orch.HandleTurn(context.Background(), agentflow.TurnInput{
		SessionID: "s1",
		Text:      "wheres the manual for model x",
		Options:   agentflow.TurnOptions{TopK: 2},
	})
	require.NoError(t, err)
	require.Equal(t, "The Model X manual is on page 12.", res.AssistantText)
	require.Equal(t, "Let me pull it up real quick.", res.Opener)
	require.Equal(t, "Where is the manual for Model X?", res.Rewrite)
	require.NotNil(t, res.Citations)
	require.Empty(t, res.Citations)

	require.Equal(t, "Where is the manual for Model X?", retriever.question)
	require.Equal(t, "idx_child_embedding", retriever.options["index_name"])

	items := f.items(t, "s1")
	require.Len(t, items, 3)
	require.Equal(t, domain.RoleUser, items[0].Role)
	require.Equal(t, "wheres the manual for model x", items[0].Content)
	require.Equal(t, domain.RoleAssistant, items[1].Role)
	require.Equal(t, "Let me pull it up real quick.", items[1].Content)
	require.Equal(t, domain.RoleAssistant, items[2].Role)
	require.Equal(t, "The Model X manual is on page 12.", items[2].Content)

	call, ok := f.llm.lastCall(modelAnswer)
	require.True(t, ok)
	require.InDelta(t, agentflow.DefaultTemperature, call.temperature, 1e-9)
	msgs := call.messages
	require.Equal(t, domain.RoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Content, "phone number")
	require.Equal(t, domain.Message{
		Role:    domain.RoleSystem,
		Content: "Context:\nModel X manual: page 12\n\nModel X warranty: 2 years",
	}, msgs[1])
	require.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "wheres the manual for model x"},
		{Role: domain.RoleAssistant, Content: "Let me pull it up real quick."},
		{Role: domain.RoleAssistant, Content: "Let me pull it up real quick."},
		{Role: domain.RoleUser, Content: "Where is the manual for Model X?"},
	}, msgs[2:])

	rw, ok := f.llm.lastCall(modelRewrite)
	require.True(t, ok)
	require.Zero(t, rw.temperature)
	op, ok := f.llm.lastCall(modelOpener)
	require.True(t, ok)
	require.InDelta(t, 0.7, op.temperature, 1e-9)
	require.Equal(t, "Where is the manual for Model X?", op.messages[1].Content)
}

func TestHandleTurnWindowsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	convID, err := f.registry.EnsureSession(ctx, "s2")
	require.NoError(t, err)
	for i := range 20 {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		_, err := f.store.AddItem(ctx, convID, domain.NewItem{Role: role, Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}
	_, err = f.store.AddItem(ctx, convID, domain.NewItem{Role: domain.RoleSystem, Content: "ignored"})
	require.NoError(t, err)
	_, err = f.store.AddItem(ctx, convID, domain.NewItem{Role: domain.RoleUser, Content: ""})
	require.NoError(t, err)

	temp := 0.9
	_, err = f.orch.HandleTurn(ctx, agentflow.TurnInput{
		SessionID: "s2",
		Text:      "and the warranty",
		Options:   agentflow.TurnOptions{Temperature: &temp},
	})
	require.NoError(t, err)

	call, ok := f.llm.lastCall(modelAnswer)
	require.True(t, ok)
	require.InDelta(t, 0.9, call.temperature, 1e-9)

	// preamble, 12 history entries, opener, rewrite; no context without retrieval
	msgs := call.messages
	require.Len(t, msgs, 15)
	history := msgs[1:13]
	require.Equal(t, "msg 10", history[0].Content)
	require.Equal(t, "and the warranty", history[10].Content)
	require.Equal(t, "Let me pull it up real quick.", history[11].Content)
	for _, m := range history {
		require.NotEqual(t, domain.RoleSystem, m.Role)
	}
}

func TestHandleTurnRetrievalFailureDegrades(t *testing.T) {
	f := newFixture(t, &stubRetriever{err: errors.New("neo4j unavailable")})

	res, err := f.orch.HandleTurn(context.Background(), agentflow.TurnInput{SessionID: "s3", Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, "The Model X manual is on page 12.", res.AssistantText)

	call, ok := f.llm.lastCall(modelAnswer)
	require.True(t, ok)
	for _, m := range call.messages[1:] {
		require.NotContains(t, m.Content, "Context:")
	}
}

func TestHandleTurnCompletionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.errs[modelAnswer] = errors.New("upstream 503")

	_, err := f.orch.HandleTurn(context.Background(), agentflow.TurnInput{SessionID: "s4", Text: "hello"})
	require.Error(t, err)
	require.True(t, domain.IsCompletion(err))

	// user item and opener were recorded before the failure
	items := f.items(t, "s4")
	require.Len(t, items, 2)
}

func TestHandleTurnStreamHappyPath(t *testing.T) {
	f := newFixture(t, &stubRetriever{docs: []string{"Model X manual: page 12"}})

	events := collect(f.orch.HandleTurnStream(context.Background(), agentflow.TurnInput{
		SessionID: "s5",
		Text:      "wheres the manual for model x",
	}))
	require.Equal(t, []agentflow.EventType{agentflow.EventOpener, agentflow.EventFinal, agentflow.EventDone}, eventTypes(events))
	require.Equal(t, "Let me pull it up real quick.", events[0].Text)
	require.Equal(t, "The Model X manual is on page 12.", events[1].Text)
	require.Equal(t, map[string]any{"text": "Let me pull it up real quick."}, events[0].Data())

	call, ok := f.llm.lastCall(modelAnswer)
	require.True(t, ok)
	require.NotContains(t, call.messages[0].Content, "phone number")
	require.Equal(t, "Context:\nModel X manual: page 12", call.messages[1].Content)

	require.Len(t, f.items(t, "s5"), 3)
}

func TestHandleTurnStreamRecordsOpenerBeforeRetrieval(t *testing.T) {
	retriever := &stubRetriever{docs: []string{"doc"}, release: make(chan struct{})}
	f := newFixture(t, retriever)

	var types []agentflow.EventType
	for ev := range f.orch.HandleTurnStream(context.Background(), agentflow.TurnInput{SessionID: "s6", Text: "hi"}) {
		types = append(types, ev.Type)
		if ev.Type == agentflow.EventOpener {
			items := f.items(t, "s6")
			require.Len(t, items, 2)
			require.Equal(t, ev.Text, items[1].Content)
			close(retriever.release)
		}
	}
	require.Equal(t, []agentflow.EventType{agentflow.EventOpener, agentflow.EventFinal, agentflow.EventDone}, types)
}

func TestHandleTurnStreamRetrievalFailureEvent(t *testing.T) {
	f := newFixture(t, &stubRetriever{err: errors.New("index missing")})

	events := collect(f.orch.HandleTurnStream(context.Background(), agentflow.TurnInput{SessionID: "s7", Text: "hi"}))
	require.Equal(t, []agentflow.EventType{
		agentflow.EventOpener, agentflow.EventRetrieval, agentflow.EventFinal, agentflow.EventDone,
	}, eventTypes(events))
	require.Zero(t, events[1].Docs)
	require.Contains(t, events[1].Error, "index missing")
	require.Equal(t, 0, events[1].Data()["docs"])
}

func TestHandleTurnStreamConsumerStopsAfterOpener(t *testing.T) {
	f := newFixture(t, &stubRetriever{docs: []string{"doc"}})

	var events []agentflow.Event
	for ev := range f.orch.HandleTurnStream(context.Background(), agentflow.TurnInput{SessionID: "s8", Text: "hi"}) {
		events = append(events, ev)
		break
	}
	require.Len(t, events, 1)
	require.Equal(t, agentflow.EventOpener, events[0].Type)

	_, answered := f.llm.lastCall(modelAnswer)
	require.False(t, answered)
	require.Len(t, f.items(t, "s8"), 2)
}

func TestHandleTurnStreamCallerGoneAfterOpener(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(f.orch.HandleTurnStream(ctx, agentflow.TurnInput{SessionID: "s9", Text: "hi"}))
	require.Equal(t, []agentflow.EventType{agentflow.EventOpener}, eventTypes(events))

	_, answered := f.llm.lastCall(modelAnswer)
	assert.False(t, answered)
	require.Len(t, f.items(t, "s9"), 2)
}

func TestHandleTurnStreamFailureEndsWithErrorThenDone(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.errs[modelRewrite] = errors.New("rate limited")

	events := collect(f.orch.HandleTurnStream(context.Background(), agentflow.TurnInput{SessionID: "s10", Text: "hi"}))
	require.Equal(t, []agentflow.EventType{agentflow.EventError, agentflow.EventDone}, eventTypes(events))
	require.Contains(t, events[0].Message, "rate limited")
	require.Equal(t, map[string]any{}, events[1].Data())

	// the utterance is recorded before any model call
	items := f.items(t, "s10")
	require.Len(t, items, 1)
	require.Equal(t, domain.RoleUser, items[0].Role)
}

func TestHandleTurnStreamOpenerFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.errs[modelOpener] = errors.New("opener backend down")

	events := collect(f.orch.HandleTurnStream(context.Background(), agentflow.TurnInput{SessionID: "s11", Text: "hi"}))
	require.Equal(t, []agentflow.EventType{agentflow.EventError, agentflow.EventDone}, eventTypes(events))
}

// gatedOpener holds the opener call until retrieval has started.
type gatedOpener struct {
	*scriptedLLM
	started <-chan struct{}
}

func (g gatedOpener) Complete(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	if model == modelOpener {
		select {
		case <-g.started:
		case <-time.After(2 * time.Second):
			return "", errors.New("retrieval did not start while the opener was running")
		}
	}
	return g.scriptedLLM.Complete(ctx, model, messages, temperature)
}

type signalingRetriever struct {
	once    sync.Once
	started chan struct{}
}

func (r *signalingRetriever) Retrieve(context.Context, string, string, map[string]any) ([]string, error) {
	r.once.Do(func() { close(r.started) })
	return []string{"Model X manual: page 12"}, nil
}

func TestRetrievalOverlapsOpener(t *testing.T) {
	retriever := &signalingRetriever{started: make(chan struct{})}
	llm := newScriptedLLM()
	store := memory.NewConversationStore()
	registry := session.NewRegistry(store, 0)

	orch := agentflow.NewOrchestrator(agentflow.Deps{
		Sessions:  registry,
		Store:     store,
		LLM:       completion.NewClient(gatedOpener{scriptedLLM: llm, started: retriever.started}, nil),
		Retriever: retriever,
	}, agentflow.Config{
		Models: agentflow.Models{Rewrite: modelRewrite, Opener: modelOpener, Answer: modelAnswer},
		Query:  "CALL db.index.vector.queryNodes(...)",
	})

	res, err := orch.HandleTurn(context.Background(), agentflow.TurnInput{SessionID: "s-overlap", Text: "manual for model x"})
	require.NoError(t, err)
	require.Equal(t, "Let me pull it up real quick.", res.Opener)

	call, ok := llm.lastCall(modelAnswer)
	require.True(t, ok)
	require.Equal(t, "Context:\nModel X manual: page 12", call.messages[1].Content)
}
