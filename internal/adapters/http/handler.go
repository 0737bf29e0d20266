package httpadapter

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/voicechat/internal/app/agentflow"
	"github.com/PabloGalante/voicechat/internal/app/conversation"
	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

const defaultKeepAlive = 15 * time.Second

type Options struct {
	CORSOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer  prometheus.Gatherer
	KeepAlive time.Duration
}

type Server struct {
	svc       *conversation.Service
	keepAlive time.Duration
}

func NewServer(svc *conversation.Service, opts Options) http.Handler {
	s := &Server{svc: svc, keepAlive: opts.KeepAlive}
	if s.keepAlive <= 0 {
		s.keepAlive = defaultKeepAlive
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery(), withRequestID(), withLogging(), withCORS(opts.CORSOrigins))

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// /sessions                     → POST: create session
	// /sessions/:id                 → DELETE: end session
	// /sessions/:id/messages        → GET: conversation items
	// /sessions/:id/message         → POST: run a turn
	// /sessions/:id/message-stream  → GET: run a turn as SSE
	r.POST("/sessions", s.handleCreateSession)
	r.DELETE("/sessions/:id", s.handleDeleteSession)
	r.GET("/sessions/:id/messages", s.handleGetMessages)
	r.POST("/sessions/:id/message", s.handleSendMessage)
	r.GET("/sessions/:id/message-stream", s.handleMessageStream)

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type turnOptions struct {
	Temperature *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopK        *int     `json:"top_k" binding:"omitempty,gte=1,lte=50"`
}

func (o turnOptions) toTurnOptions() agentflow.TurnOptions {
	out := agentflow.TurnOptions{Temperature: o.Temperature}
	if o.TopK != nil {
		out.TopK = *o.TopK
	}
	return out
}

type sendMessageRequest struct {
	Text    string      `json:"text" binding:"required"`
	Options turnOptions `json:"options"`
}

type streamQuery struct {
	Q           string   `form:"q" binding:"required"`
	Temperature *float64 `form:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopK        *int     `form:"top_k" binding:"omitempty,gte=1,lte=50"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	out, err := s.svc.StartSession(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createSessionResponse{ID: string(out.SessionID)})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	rec, err := s.svc.EndSession(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetMessages(c *gin.Context) {
	list, err := s.svc.GetSessionTimeline(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := s.svc.SendMessage(c.Request.Context(), conversation.SendMessageInput{
		SessionID: sessionID(c),
		Text:      req.Text,
		Options:   req.Options.toTurnOptions(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleMessageStream emits opener, final, error and done events. Retrieval
// notices stay server-side.
func (s *Server) handleMessageStream(c *gin.Context) {
	var q streamQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	events, err := s.svc.StreamMessage(ctx, conversation.SendMessageInput{
		SessionID: sessionID(c),
		Text:      q.Q,
		Options:   turnOptions{Temperature: q.Temperature, TopK: q.TopK}.toTurnOptions(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	w := newSSEWriter(c)
	stop := w.keepAlive(ctx, s.keepAlive)
	defer stop()

	log := observability.LoggerFromContext(ctx).With("component", "http")
	for ev := range events {
		if ev.Type == agentflow.EventRetrieval {
			continue
		}
		if err := w.event(string(ev.Type), ev.Data()); err != nil {
			log.Debug("sse write failed", "error", err)
			break
		}
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func sessionID(c *gin.Context) domain.SessionID {
	return domain.SessionID(c.Param("id"))
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyText):
		badRequest(c, err.Error())
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	default:
		internalError(c, err)
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": msg})
}

func internalError(c *gin.Context, err error) {
	observability.LoggerFromContext(c.Request.Context()).Error("request failed", "component", "http", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}
