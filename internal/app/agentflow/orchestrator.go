package agentflow

import (
	"context"
	"errors"
	"iter"
	"maps"
	"strings"
	"time"

	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

const (
	DefaultTopK        = 6
	DefaultTemperature = 0.2

	previewRunes = 240
)

// Sessions resolves a caller session id to its live conversation.
type Sessions interface {
	EnsureSession(ctx context.Context, sessionID domain.SessionID) (domain.ConversationID, error)
}

// Retriever fetches grounding passages, most relevant first.
type Retriever interface {
	Retrieve(ctx context.Context, question, query string, options map[string]any) ([]string, error)
}

// Models names the backend model of each stage.
type Models struct {
	Rewrite string
	Opener  string
	Answer  string
}

type Config struct {
	Models Models
	// Query is the similarity-search template. Empty disables retrieval.
	Query            string
	RetrievalOptions map[string]any
	TopK             int
	MaxHistoryItems  int
}

type Deps struct {
	Sessions  Sessions
	Store     domain.ConversationStore
	LLM       domain.Completer
	Retriever Retriever
	Metrics   *observability.Metrics
}

// Orchestrator runs one conversational turn: rewrite, then opener and
// retrieval concurrently, then the grounded answer.
type Orchestrator struct {
	sessions  Sessions
	store     domain.ConversationStore
	retriever Retriever
	metrics   *observability.Metrics

	rewriter *RewriterAgent
	opener   *OpenerAgent
	answerer *AnswererAgent

	query      string
	options    map[string]any
	topK       int
	maxHistory int
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxHistory := cfg.MaxHistoryItems
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistoryItems
	}

	return &Orchestrator{
		sessions:   deps.Sessions,
		store:      deps.Store,
		retriever:  deps.Retriever,
		metrics:    deps.Metrics,
		rewriter:   NewRewriterAgent(deps.LLM, cfg.Models.Rewrite),
		opener:     NewOpenerAgent(deps.LLM, cfg.Models.Opener),
		answerer:   NewAnswererAgent(deps.LLM, cfg.Models.Answer),
		query:      cfg.Query,
		options:    maps.Clone(cfg.RetrievalOptions),
		topK:       topK,
		maxHistory: maxHistory,
	}
}

// turn carries the state of one in-flight turn.
type turn struct {
	in      TurnInput
	convID  domain.ConversationID
	rewrite string
	opener  string

	openerF    *future[string]
	retrievalF *future[[]string]
	retrievalT time.Time
}

// HandleTurn runs a turn to completion and returns its outcome.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	ctx = withSession(ctx, in)
	log := observability.LoggerFromContext(ctx).With("component", "chat")
	start := time.Now()
	log.Info("turn start", "user_len", len(in.Text))

	res, err := o.runBatch(context.WithoutCancel(ctx), in)
	if err != nil {
		o.metrics.ObserveTurn("batch", "error")
		log.Error("turn failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	o.metrics.ObserveTurn("batch", "ok")
	log.Info("turn end", "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, in TurnInput) (*TurnResult, error) {
	t, err := o.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := o.awaitOpener(ctx, t); err != nil {
		return nil, err
	}

	contextText, _ := o.awaitContext(ctx, t)

	answer, err := o.answer(ctx, t, contextText, true)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		AssistantText: answer,
		Opener:        t.opener,
		Rewrite:       t.rewrite,
		Citations:     []domain.Citation{},
	}, nil
}

// HandleTurnStream runs a turn and yields its stage events. The stream ends
// with done, preceded by a single error on failure. When the consumer stops
// after the opener, or ctx is done by then, the turn is abandoned silently.
func (o *Orchestrator) HandleTurnStream(ctx context.Context, in TurnInput) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx := withSession(ctx, in)
		log := observability.LoggerFromContext(ctx).With("component", "chat")
		start := time.Now()
		log.Info("stream start", "user_len", len(in.Text))

		outcome, err := o.runStream(ctx, in, yield)
		o.metrics.ObserveTurn("stream", outcome)

		switch outcome {
		case "abandoned":
			log.Warn("stream abandoned by consumer", "elapsed_ms", time.Since(start).Milliseconds())
		case "error":
			log.Error("stream failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
			if yield(Event{Type: EventError, Message: err.Error()}) {
				yield(Event{Type: EventDone})
			}
		default:
			log.Info("stream end", "elapsed_ms", time.Since(start).Milliseconds())
		}
	}
}

func (o *Orchestrator) runStream(ctx context.Context, in TurnInput, yield func(Event) bool) (string, error) {
	stageCtx := context.WithoutCancel(ctx)

	t, err := o.begin(stageCtx, in)
	if err != nil {
		return "error", err
	}
	if err := o.awaitOpener(stageCtx, t); err != nil {
		return "error", err
	}

	if !yield(Event{Type: EventOpener, Text: t.opener}) || ctx.Err() != nil {
		return "abandoned", nil
	}

	contextText, rerr := o.awaitContext(stageCtx, t)
	if rerr != nil {
		if !yield(Event{Type: EventRetrieval, Docs: 0, Error: rerr.Error()}) {
			return "abandoned", nil
		}
	}

	answer, err := o.answer(stageCtx, t, contextText, false)
	if err != nil {
		return "error", err
	}

	if !yield(Event{Type: EventFinal, Text: answer}) {
		return "abandoned", nil
	}
	yield(Event{Type: EventDone})
	return "ok", nil
}

// begin records the utterance, rewrites it and starts the opener and
// retrieval stages.
func (o *Orchestrator) begin(ctx context.Context, in TurnInput) (*turn, error) {
	log := observability.LoggerFromContext(ctx).With("component", "chat")

	convID, err := o.sessions.EnsureSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.AddItem(ctx, convID, domain.NewItem{Role: domain.RoleUser, Content: in.Text}); err != nil {
		return nil, err
	}

	start := time.Now()
	rewrite, err := o.rewriter.Run(ctx, in.Text)
	if err != nil {
		return nil, err
	}
	log.Info("rewrite", "elapsed_ms", time.Since(start).Milliseconds(), "text", observability.Clip(rewrite, previewRunes))

	t := &turn{in: in, convID: convID, rewrite: rewrite}
	t.openerF = goFuture(func() (string, error) {
		return o.opener.Run(ctx, rewrite)
	})
	if o.retrievalEnabled() {
		t.retrievalT = time.Now()
		options := maps.Clone(o.options)
		t.retrievalF = goFuture(func() ([]string, error) {
			return o.retriever.Retrieve(ctx, rewrite, o.query, options)
		})
	}
	return t, nil
}

// awaitOpener waits for the opener and records it before anything else is
// awaited.
func (o *Orchestrator) awaitOpener(ctx context.Context, t *turn) error {
	log := observability.LoggerFromContext(ctx).With("component", "chat")
	start := time.Now()

	opener, err := t.openerF.wait()
	if err != nil {
		return err
	}
	t.opener = opener
	log.Info("opener", "elapsed_ms", time.Since(start).Milliseconds(), "text", observability.Clip(opener, previewRunes))

	_, err = o.store.AddItem(ctx, t.convID, domain.NewItem{Role: domain.RoleAssistant, Content: opener})
	return err
}

// awaitContext returns the joined top passages. A retrieval failure yields an
// empty context together with the cause; it never fails the turn.
func (o *Orchestrator) awaitContext(ctx context.Context, t *turn) (string, error) {
	if t.retrievalF == nil {
		return "", nil
	}
	log := observability.LoggerFromContext(ctx).With("component", "retrieval")

	docs, err := t.retrievalF.wait()
	o.metrics.ObserveStage("retrieval", t.retrievalT, err)
	if err != nil {
		var rerr *domain.RetrievalError
		if !errors.As(err, &rerr) {
			err = &domain.RetrievalError{Err: err}
		}
		o.metrics.RetrievalFailed()
		log.Error("retrieval failed", "error", err, "elapsed_ms", time.Since(t.retrievalT).Milliseconds())
		return "", err
	}

	topK := o.effectiveTopK(t.in.Options)
	if len(docs) > topK {
		docs = docs[:topK]
	}
	contextText := strings.Join(docs, "\n\n")
	log.Info("retrieval",
		"elapsed_ms", time.Since(t.retrievalT).Milliseconds(),
		"docs", len(docs),
		"top_k", topK,
		"preview", observability.Clip(contextText, previewRunes),
	)
	return contextText, nil
}

// answer builds the grounded prompt from the current history and records the
// reply.
func (o *Orchestrator) answer(ctx context.Context, t *turn, contextText string, strict bool) (string, error) {
	log := observability.LoggerFromContext(ctx).With("component", "chat")

	items, err := o.store.GetItems(ctx, t.convID)
	if err != nil {
		return "", err
	}
	history := historyMessages(items, o.maxHistory)

	temperature := DefaultTemperature
	if t.in.Options.Temperature != nil {
		temperature = *t.in.Options.Temperature
	}

	start := time.Now()
	answer, err := o.answerer.Run(ctx, AnswerInput{
		Rewrite:     t.rewrite,
		Opener:      t.opener,
		Context:     contextText,
		History:     history,
		Temperature: temperature,
		Strict:      strict,
	})
	if err != nil {
		return "", err
	}
	log.Info("final answer",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"history", len(history),
		"temperature", temperature,
		"text", observability.Clip(answer, previewRunes),
	)

	if _, err := o.store.AddItem(ctx, t.convID, domain.NewItem{Role: domain.RoleAssistant, Content: answer}); err != nil {
		return "", err
	}
	return answer, nil
}

func (o *Orchestrator) retrievalEnabled() bool {
	return o.retriever != nil && o.query != ""
}

func (o *Orchestrator) effectiveTopK(opts TurnOptions) int {
	if opts.TopK > 0 {
		return opts.TopK
	}
	return o.topK
}

func withSession(ctx context.Context, in TurnInput) context.Context {
	return observability.EnsureSessionID(ctx, string(in.SessionID))
}
