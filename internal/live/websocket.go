package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/shsh-practice/internal/clock"
	"github.com/ashureev/shsh-practice/internal/domain"
	"github.com/ashureev/shsh-practice/internal/history"
	"github.com/ashureev/shsh-practice/internal/identity"
	"github.com/ashureev/shsh-practice/internal/metrics"
	"github.com/ashureev/shsh-practice/internal/panel"
	"github.com/coder/websocket"
)

const (
	outboxSize   = 64
	writeTimeout = 10 * time.Second
)

// Upstream is the platform API as seen by one authenticated view.
type Upstream interface {
	history.Fetcher
	panel.Submitter
}

// UpstreamFactory binds the platform API to the caller's bearer token.
type UpstreamFactory func(token string) Upstream

// HandlerConfig configures practice views.
type HandlerConfig struct {
	AllowedOrigin string
	IsDev         bool
	TickInterval  time.Duration
	PageSize      int
}

// HandlerDeps are shared by every view the handler serves.
type HandlerDeps struct {
	Clock     clock.Clock
	Scheduler clock.Scheduler
	Upstream  UpstreamFactory
	Journal   panel.Journal
	Limiter   panel.Limiter
}

// WebSocketHandler mounts one practice panel per WebSocket connection.
type WebSocketHandler struct {
	cfg  HandlerConfig
	deps HandlerDeps
	sm   *SessionManager
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cfg HandlerConfig, deps HandlerDeps, sm *SessionManager) *WebSocketHandler {
	return &WebSocketHandler{cfg: cfg, deps: deps, sm: sm}
}

// clientMessage is an inbound view action.
type clientMessage struct {
	Type        string `json:"type"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Answer      string `json:"answer,omitempty"`
}

// serverMessage is an outbound view update.
type serverMessage struct {
	Type       string                `json:"type"`
	Timer      *panel.TimerView      `json:"timer,omitempty"`
	Feed       *panel.FeedView       `json:"feed,omitempty"`
	Submission *panel.SubmissionView `json:"submission,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	token := identity.TokenFromContext(r.Context())
	slog.Info("Practice view connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "view closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	metrics.LiveViews.Inc()
	defer metrics.LiveViews.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newOutbox(ctx)
	upstream := h.deps.Upstream(token)
	p := panel.New(panel.Config{
		UserID:       userID,
		SessionID:    sessionID,
		TickInterval: h.cfg.TickInterval,
		PageSize:     h.cfg.PageSize,
	}, panel.Deps{
		Clock:     h.deps.Clock,
		Scheduler: h.deps.Scheduler,
		Fetcher:   upstream,
		Submitter: upstream,
		Journal:   h.deps.Journal,
		Limiter:   h.deps.Limiter,
		Renderer:  out,
	})

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		defer cancel()
		out.writeLoop(ctx, ws, userID)
	}()

	var pending sync.WaitGroup
	h.inputLoop(ctx, ws, p, out, &pending, userID, sessionID)

	cancel()
	p.Close()
	pending.Wait()
	writer.Wait()
	slog.Info("Practice view ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

// inputLoop dispatches view actions until the client goes away. State changes
// are applied in arrival order; history loads and submissions run in the
// background so a slow fetch never blocks the actions that follow it.
//
//nolint:gocognit // Message dispatch covers every view action.
func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, p *panel.Panel, out *outbox, pending *sync.WaitGroup, userID, sessionID string) {
	async := func(fn func() error) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			if err := fn(); err != nil {
				out.fail(err)
			}
		}()
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			out.send(serverMessage{Type: "error", Error: "bad_message"})
			continue
		}

		switch msg.Type {
		case "select":
			// The switch is applied in arrival order; only the fetch runs behind.
			if err := p.Switch(msg.ChallengeID); err != nil {
				out.fail(err)
				continue
			}
			async(func() error { return p.Refresh(ctx) })
		case "refresh":
			async(func() error { return p.Refresh(ctx) })
		case "load_older":
			async(func() error { return p.LoadOlder(ctx) })
		case "start":
			out.fail(p.Start())
		case "pause":
			out.fail(p.Pause())
		case "reset":
			out.fail(p.Reset())
		case "submit":
			kind, answer := domain.AnswerKind(msg.Kind), msg.Answer
			async(func() error {
				_, err := p.Submit(ctx, kind, answer)
				return err
			})
		case "ping":
			out.send(serverMessage{Type: "pong"})
		case "close":
			slog.Info("Practice view close requested", "user_id", userID, "session_id", sessionID)
			return
		default:
			out.send(serverMessage{Type: "error", Error: "unknown_type"})
		}
	}
}

// outbox serializes view updates onto the connection. It implements
// panel.Renderer.
type outbox struct {
	ctx context.Context
	ch  chan serverMessage
}

func newOutbox(ctx context.Context) *outbox {
	return &outbox{ctx: ctx, ch: make(chan serverMessage, outboxSize)}
}

func (o *outbox) RenderTimer(v panel.TimerView) {
	o.send(serverMessage{Type: "timer", Timer: &v})
}

func (o *outbox) RenderFeed(v panel.FeedView) {
	o.send(serverMessage{Type: "feed", Feed: &v})
}

func (o *outbox) RenderSubmission(v panel.SubmissionView) {
	o.send(serverMessage{Type: "submission", Submission: &v})
}

func (o *outbox) send(msg serverMessage) {
	select {
	case o.ch <- msg:
	case <-o.ctx.Done():
	}
}

// fail reports a rejected action. Upstream submission failures are already
// rendered as a submission update and are not repeated here.
func (o *outbox) fail(err error) {
	if code := errorCode(err); code != "" {
		o.send(serverMessage{Type: "error", Error: code})
	}
}

func (o *outbox) writeLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.ch:
			if err := writeJSON(ctx, ws, msg); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, panel.ErrNoChallenge):
		return "no_challenge"
	case errors.Is(err, panel.ErrInvalidAnswer):
		return "invalid_answer"
	case errors.Is(err, panel.ErrRateLimited):
		return "rate_limited"
	default:
		return ""
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
