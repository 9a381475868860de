// Package history keeps a deduplicated, chronologically ordered view of a
// practice conversation that the platform only serves as newest-first pages.
package history

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/ashureev/shsh-practice/internal/domain"
)

// DefaultPageSize is the number of messages requested per page.
const DefaultPageSize = 20

// Fetcher loads one page of conversation history.
type Fetcher interface {
	FetchHistory(ctx context.Context, req domain.PageRequest) (domain.Page, error)
}

// Config holds reconciler configuration.
type Config struct {
	// PageSize is sent with every request. Values <= 0 mean DefaultPageSize.
	PageSize int
	Logger   *slog.Logger
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{PageSize: DefaultPageSize}
}

// Direction names which end of the conversation a load targets.
type Direction string

const (
	DirectionLatest Direction = "latest"
	DirectionOlder  Direction = "older"
)

// Outcome reports what a load did to the feed.
type Outcome string

const (
	// OutcomeApplied means the fetched page was merged into the feed.
	OutcomeApplied Outcome = "ok"
	// OutcomeFailed means the fetch failed and the feed degraded softly.
	OutcomeFailed Outcome = "error"
	// OutcomeSuperseded means a newer load started first; the result was dropped.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeSkipped means no fetch was issued.
	OutcomeSkipped Outcome = "skipped"
)

// Snapshot is a point-in-time copy of the feed.
type Snapshot struct {
	Key           domain.ConversationKey `json:"key"`
	Messages      []domain.ChatMessage   `json:"messages"`
	NextCursor    *string                `json:"next_cursor"`
	LoadingLatest bool                   `json:"loading_latest"`
	LoadingOlder  bool                   `json:"loading_older"`
}

// HasMore reports whether older history is still available upstream.
func (s Snapshot) HasMore() bool {
	return s.NextCursor != nil
}

// Reconciler owns the message feed of one view. Only the most recently issued
// load may change state; results of superseded loads are discarded whole.
type Reconciler struct {
	fetcher  Fetcher
	pageSize int
	log      *slog.Logger

	mu            sync.Mutex
	key           domain.ConversationKey
	messages      []domain.ChatMessage
	next          *string
	loadingLatest bool
	loadingOlder  bool
	generation    uint64
	abort         context.CancelFunc
	closed        bool
}

// NewReconciler creates an empty reconciler.
func NewReconciler(fetcher Fetcher, cfg Config) *Reconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reconciler{
		fetcher:  fetcher,
		pageSize: cfg.PageSize,
		log:      cfg.Logger,
	}
}

// Reset discards the feed and starts an empty one for key, superseding any
// in-flight load. It is the only way to move a held feed to another key.
func (r *Reconciler) Reset(key domain.ConversationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(key)
}

// Close supersedes any in-flight load and refuses later ones. The feed itself
// is left as is.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.supersedeLocked()
	r.loadingLatest = false
	r.loadingOlder = false
}

// LoadLatest fetches the newest page and replaces the feed with it.
// Failures leave an empty feed with no cursor. It never returns an error.
// A fresh reconciler adopts key; otherwise a key other than the held one was
// issued before the last Reset and is reported as superseded.
func (r *Reconciler) LoadLatest(ctx context.Context, key domain.ConversationKey) Outcome {
	r.mu.Lock()
	if !r.acceptLocked(key) {
		r.mu.Unlock()
		return OutcomeSuperseded
	}
	gen, fctx := r.beginLocked(ctx)
	r.loadingLatest = true
	req := domain.PageRequest{Key: key, PageSize: r.pageSize}
	r.mu.Unlock()

	page, err := r.fetcher.FetchHistory(fctx, req)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finishLocked(gen) {
		return OutcomeSuperseded
	}
	r.loadingLatest = false
	if err != nil {
		// The caller went away; that is not a failure of the feed.
		if errors.Is(err, context.Canceled) {
			return OutcomeSuperseded
		}
		r.log.Warn("history: latest page fetch failed", "conversation", key.String(), "error", err)
		r.messages = nil
		r.next = nil
		return OutcomeFailed
	}

	r.messages = Merge(nil, chronological(page.Messages))
	r.next = normalizeCursor(page.Next)
	return OutcomeApplied
}

// LoadOlder fetches the page behind the held cursor and merges it into the feed.
// It is a no-op when history is exhausted or an older load is already running.
// Failures leave the feed and cursor untouched.
func (r *Reconciler) LoadOlder(ctx context.Context, key domain.ConversationKey) Outcome {
	r.mu.Lock()
	if !r.acceptLocked(key) {
		r.mu.Unlock()
		return OutcomeSuperseded
	}
	if r.next == nil || r.loadingOlder {
		r.mu.Unlock()
		return OutcomeSkipped
	}
	gen, fctx := r.beginLocked(ctx)
	r.loadingOlder = true
	req := domain.PageRequest{Key: key, PageSize: r.pageSize, Cursor: *r.next}
	r.mu.Unlock()

	page, err := r.fetcher.FetchHistory(fctx, req)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finishLocked(gen) {
		return OutcomeSuperseded
	}
	r.loadingOlder = false
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return OutcomeSuperseded
		}
		r.log.Warn("history: older page fetch failed", "conversation", key.String(), "error", err)
		return OutcomeFailed
	}

	r.messages = Merge(r.messages, chronological(page.Messages))
	r.next = normalizeCursor(page.Next)
	return OutcomeApplied
}

// Snapshot returns a copy of the current feed.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		Key:           r.key,
		Messages:      slices.Clone(r.messages),
		LoadingLatest: r.loadingLatest,
		LoadingOlder:  r.loadingOlder,
	}
	if s.Messages == nil {
		s.Messages = []domain.ChatMessage{}
	}
	if r.next != nil {
		c := *r.next
		s.NextCursor = &c
	}
	return s
}

// acceptLocked reports whether a load for key may touch the feed.
func (r *Reconciler) acceptLocked(key domain.ConversationKey) bool {
	if r.closed {
		return false
	}
	if r.key.IsZero() {
		r.resetLocked(key)
		return true
	}
	return key == r.key
}

func (r *Reconciler) resetLocked(key domain.ConversationKey) {
	r.supersedeLocked()
	r.key = key
	r.messages = nil
	r.next = nil
	r.loadingLatest = false
	r.loadingOlder = false
}

// beginLocked starts a new load attempt, superseding whatever was in flight.
func (r *Reconciler) beginLocked(ctx context.Context) (uint64, context.Context) {
	r.supersedeLocked()
	// The superseded load no longer owns its busy flag.
	r.loadingLatest = false
	r.loadingOlder = false
	fctx, cancel := context.WithCancel(ctx)
	r.abort = cancel
	return r.generation, fctx
}

func (r *Reconciler) supersedeLocked() {
	r.generation++
	if r.abort != nil {
		r.abort()
		r.abort = nil
	}
}

// finishLocked reports whether gen is still current and, if so, releases its context.
func (r *Reconciler) finishLocked(gen uint64) bool {
	if gen != r.generation {
		return false
	}
	if r.abort != nil {
		r.abort()
		r.abort = nil
	}
	return true
}

func normalizeCursor(c *string) *string {
	if c == nil || *c == "" {
		return nil
	}
	v := *c
	return &v
}
