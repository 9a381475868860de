// Package panel composes the practice timer and chat-history feed behind the
// submission panel of a single practice view.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/shsh-practice/internal/clock"
	"github.com/ashureev/shsh-practice/internal/domain"
	"github.com/ashureev/shsh-practice/internal/history"
	"github.com/ashureev/shsh-practice/internal/metrics"
	"github.com/ashureev/shsh-practice/internal/timer"
)

const journalTimeout = 5 * time.Second

var (
	// ErrNoChallenge is returned for actions that need a selected challenge.
	ErrNoChallenge = errors.New("no challenge selected")
	// ErrInvalidAnswer is returned for empty answers or unknown answer kinds.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrRateLimited is returned when the user submits too often.
	ErrRateLimited = errors.New("rate limited")
	// ErrClosed is returned after the view went away.
	ErrClosed = errors.New("panel closed")
)

// Submitter grades answers.
type Submitter interface {
	SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error)
}

// Journal records panel activity.
type Journal interface {
	RecordEvent(ctx context.Context, event *domain.ActivityEvent) error
}

// Limiter throttles submissions per user.
type Limiter interface {
	Allow(key string) bool
}

// TimerView is what the view shows for the timer.
type TimerView struct {
	ChallengeID string `json:"challenge_id"`
	Running     bool   `json:"running"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	Display     string `json:"display"`
}

// FeedView is what the view shows for the chat history.
type FeedView struct {
	ChallengeID   string               `json:"challenge_id"`
	Messages      []domain.ChatMessage `json:"messages"`
	HasMore       bool                 `json:"has_more"`
	LoadingLatest bool                 `json:"loading_latest"`
	LoadingOlder  bool                 `json:"loading_older"`
}

// SubmissionView is the outcome of an answer submission.
type SubmissionView struct {
	ChallengeID string                   `json:"challenge_id"`
	Result      *domain.SubmissionResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// Renderer pushes view updates. Implementations must tolerate concurrent calls.
type Renderer interface {
	RenderTimer(v TimerView)
	RenderFeed(v FeedView)
	RenderSubmission(v SubmissionView)
}

// Config holds per-view configuration.
type Config struct {
	UserID       string
	SessionID    string
	TickInterval time.Duration
	PageSize     int
}

// Deps are the collaborators of a panel. Journal and Limiter are optional.
type Deps struct {
	Clock     clock.Clock
	Scheduler clock.Scheduler
	Fetcher   history.Fetcher
	Submitter Submitter
	Journal   Journal
	Limiter   Limiter
	Renderer  Renderer
	Logger    *slog.Logger
}

// Panel is the practice state of one view instance.
type Panel struct {
	userID    string
	sessionID string
	timer     *timer.Timer
	feed      *history.Reconciler
	submitter Submitter
	journal   Journal
	limiter   Limiter
	render    Renderer
	log       *slog.Logger

	// switchMu serializes challenge switches, timer actions and Close so the
	// timer and the feed always belong to the same key.
	switchMu sync.Mutex

	mu     sync.Mutex
	key    domain.ConversationKey
	closed bool

	// journalWG tracks in-flight journal writes so Close can wait for them.
	journalWG sync.WaitGroup
}

// New creates a panel with no challenge selected.
func New(cfg Config, deps Deps) *Panel {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	p := &Panel{
		userID:    cfg.UserID,
		sessionID: cfg.SessionID,
		submitter: deps.Submitter,
		journal:   deps.Journal,
		limiter:   deps.Limiter,
		render:    deps.Renderer,
		log:       deps.Logger.With("user_id", cfg.UserID, "session_id", cfg.SessionID),
	}
	p.timer = timer.New(deps.Clock, deps.Scheduler, timer.Config{
		TickInterval: cfg.TickInterval,
		OnTick:       p.onTick,
	})
	p.feed = history.NewReconciler(deps.Fetcher, history.Config{
		PageSize: cfg.PageSize,
		Logger:   p.log,
	})
	return p
}

// Select switches the view to a challenge and loads its latest history.
func (p *Panel) Select(ctx context.Context, challengeID string) error {
	key, err := p.switchTo(challengeID)
	if err != nil {
		return err
	}
	p.load(ctx, key, history.DirectionLatest)
	return nil
}

// Switch makes challengeID current without fetching. A different challenge
// discards the timer and the feed; reselecting the current one changes nothing.
// Callers that switch in issuance order and fetch in the background follow it
// with Refresh.
func (p *Panel) Switch(challengeID string) error {
	_, err := p.switchTo(challengeID)
	return err
}

// Start starts the timer.
func (p *Panel) Start() error {
	return p.timerAction("start", domain.ActivityTimerStart, p.timer.Start)
}

// Pause pauses the timer.
func (p *Panel) Pause() error {
	return p.timerAction("pause", domain.ActivityTimerPause, p.timer.Pause)
}

// Reset zeroes the timer.
func (p *Panel) Reset() error {
	return p.timerAction("reset", domain.ActivityTimerReset, p.timer.Reset)
}

// Refresh reloads the latest history page, replacing the feed.
func (p *Panel) Refresh(ctx context.Context) error {
	key, err := p.current()
	if err != nil {
		return err
	}
	p.load(ctx, key, history.DirectionLatest)
	return nil
}

// LoadOlder fetches the next older history page when one exists.
func (p *Panel) LoadOlder(ctx context.Context) error {
	key, err := p.current()
	if err != nil {
		return err
	}
	p.load(ctx, key, history.DirectionOlder)
	return nil
}

// Submit posts an answer together with the elapsed practice time.
func (p *Panel) Submit(ctx context.Context, kind domain.AnswerKind, answer string) (domain.SubmissionResult, error) {
	key, err := p.current()
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	answer = strings.TrimSpace(answer)
	if !kind.Valid() || answer == "" {
		return domain.SubmissionResult{}, ErrInvalidAnswer
	}
	if p.limiter != nil && !p.limiter.Allow(p.userID) {
		metrics.Submissions.WithLabelValues("rate_limited").Inc()
		return domain.SubmissionResult{}, ErrRateLimited
	}

	elapsed := p.timer.Read().Elapsed.Milliseconds()
	res, err := p.submitter.SubmitAnswer(ctx, domain.Submission{
		Key:       key,
		Kind:      kind,
		Answer:    answer,
		ElapsedMs: elapsed,
	})
	if err != nil {
		metrics.Submissions.WithLabelValues("error").Inc()
		p.log.Warn("Answer submission failed", "challenge_id", key.ChallengeID, "error", err)
		p.renderSubmission(SubmissionView{ChallengeID: key.ChallengeID, Error: "submission failed"})
		return domain.SubmissionResult{}, fmt.Errorf("submit answer: %w", err)
	}

	outcome := "incorrect"
	if res.Correct {
		outcome = "correct"
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()

	detail, _ := json.Marshal(map[string]any{"kind": kind, "correct": res.Correct, "score": res.Score})
	p.record(key, domain.ActivitySubmit, elapsed, string(detail))
	p.renderSubmission(SubmissionView{ChallengeID: key.ChallengeID, Result: &res})
	return res, nil
}

// Timer returns the current timer view.
func (p *Panel) Timer() TimerView {
	return timerView(p.timer.Read())
}

// Feed returns the current feed view.
func (p *Panel) Feed() FeedView {
	s := p.feed.Snapshot()
	return FeedView{
		ChallengeID:   s.Key.ChallengeID,
		Messages:      s.Messages,
		HasMore:       s.HasMore(),
		LoadingLatest: s.LoadingLatest,
		LoadingOlder:  s.LoadingOlder,
	}
}

// Close tears the panel down: ticks stop, in-flight loads are superseded and
// pending journal writes are flushed. Elapsed progress is discarded.
func (p *Panel) Close() {
	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.timer.Close()
	p.feed.Close()
	p.journalWG.Wait()
}

func (p *Panel) switchTo(challengeID string) (domain.ConversationKey, error) {
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return domain.ConversationKey{}, ErrNoChallenge
	}
	key := domain.ConversationKey{UserID: p.userID, ChallengeID: challengeID}

	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ConversationKey{}, ErrClosed
	}
	changed := p.key != key
	p.key = key
	p.mu.Unlock()

	if changed {
		p.log.Info("Practice challenge selected", "challenge_id", challengeID)
		p.timer.Initialize(key.UserID, key.ChallengeID)
		p.feed.Reset(key)
		p.renderFeed()
	}
	return key, nil
}

func (p *Panel) current() (domain.ConversationKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ConversationKey{}, ErrClosed
	}
	if p.key.ChallengeID == "" {
		return domain.ConversationKey{}, ErrNoChallenge
	}
	return p.key, nil
}

func (p *Panel) timerAction(action string, kind domain.ActivityKind, fn func()) error {
	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	key, err := p.current()
	if err != nil {
		return err
	}
	before := p.timer.State()
	fn()
	after := p.timer.State()
	metrics.TimerActions.WithLabelValues(action).Inc()

	// Idempotent no-ops are not journaled.
	if kind != domain.ActivityTimerReset && before.Running == after.Running {
		return nil
	}
	p.record(key, kind, after.AccumulatedMs, "")
	return nil
}

func (p *Panel) load(ctx context.Context, key domain.ConversationKey, dir history.Direction) {
	var outcome history.Outcome
	if dir == history.DirectionOlder {
		outcome = p.feed.LoadOlder(ctx, key)
	} else {
		outcome = p.feed.LoadLatest(ctx, key)
	}
	metrics.HistoryLoads.WithLabelValues(string(dir), string(outcome)).Inc()

	switch outcome {
	case history.OutcomeApplied, history.OutcomeFailed:
		p.renderFeed()
	case history.OutcomeSuperseded:
		p.log.Debug("History load superseded", "challenge_id", key.ChallengeID, "direction", dir)
	}
}

func (p *Panel) onTick(r timer.Reading) {
	p.mu.Lock()
	stale := r.Owner != p.key || p.closed
	p.mu.Unlock()
	if stale || p.render == nil {
		return
	}
	p.render.RenderTimer(timerView(r))
}

func timerView(r timer.Reading) TimerView {
	return TimerView{
		ChallengeID: r.Owner.ChallengeID,
		Running:     r.Running,
		ElapsedMs:   r.Elapsed.Milliseconds(),
		Display:     timer.Format(r.Elapsed),
	}
}

func (p *Panel) renderFeed() {
	if p.render != nil {
		p.render.RenderFeed(p.Feed())
	}
}

func (p *Panel) renderSubmission(v SubmissionView) {
	if p.render != nil {
		p.render.RenderSubmission(v)
	}
}

// record journals an event in the background with its own timeout.
func (p *Panel) record(key domain.ConversationKey, kind domain.ActivityKind, elapsedMs int64, detail string) {
	if p.journal == nil {
		return
	}
	event := &domain.ActivityEvent{
		UserID:      key.UserID,
		ChallengeID: key.ChallengeID,
		SessionID:   p.sessionID,
		Kind:        kind,
		ElapsedMs:   elapsedMs,
		Detail:      detail,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.journalWG.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.journalWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := p.journal.RecordEvent(ctx, event); err != nil {
			metrics.JournalWriteFailures.Inc()
			p.log.Warn("Failed to journal activity", "kind", kind, "error", err)
		}
	}()
}
