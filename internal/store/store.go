// Package store provides persistence for the practice-panel activity journal.
package store

import (
	"context"
	"time"

	"github.com/ashureev/shsh-practice/internal/domain"
)

// Repository persists journaled practice-view activity.
//
// The journal is an audit trail for dashboards. It is never read back to
// restore a timer; timer state lives only as long as its view.
type Repository interface {
	// RecordEvent appends an event. Missing ID and CreatedAt are filled in.
	RecordEvent(ctx context.Context, event *domain.ActivityEvent) error

	// ListEvents returns the newest events for a user, optionally limited to a challenge.
	ListEvents(ctx context.Context, userID, challengeID string, limit int) ([]*domain.ActivityEvent, error)

	// CleanupOlderThan removes events older than ttl and returns how many were deleted.
	CleanupOlderThan(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
