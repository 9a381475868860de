package domain

import "time"

// AnswerKind discriminates the two ways a challenge can be answered.
type AnswerKind string

const (
	// AnswerFlag is a CTF-style flag string compared verbatim upstream.
	AnswerFlag AnswerKind = "flag"
	// AnswerText is a free-form written answer graded upstream.
	AnswerText AnswerKind = "text"
)

// Valid reports whether k is a known answer kind.
func (k AnswerKind) Valid() bool {
	return k == AnswerFlag || k == AnswerText
}

// Submission is an answer posted for a challenge.
type Submission struct {
	Key       ConversationKey `json:"-"`
	Kind      AnswerKind      `json:"kind"`
	Answer    string          `json:"answer"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

// SubmissionResult is the grading outcome returned by the platform API.
type SubmissionResult struct {
	Correct bool     `json:"correct"`
	Score   *float64 `json:"score,omitempty"`
	Message string   `json:"message,omitempty"`
}

// ActivityKind names a journaled practice-panel action.
type ActivityKind string

const (
	ActivityTimerStart ActivityKind = "timer_start"
	ActivityTimerPause ActivityKind = "timer_pause"
	ActivityTimerReset ActivityKind = "timer_reset"
	ActivitySubmit     ActivityKind = "submit"
)

// ActivityEvent is one journaled action taken in a practice view.
type ActivityEvent struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	ChallengeID string       `json:"challenge_id"`
	SessionID   string       `json:"session_id"`
	Kind        ActivityKind `json:"kind"`
	ElapsedMs   int64        `json:"elapsed_ms"`
	Detail      string       `json:"detail,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
