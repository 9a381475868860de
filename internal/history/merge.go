package history

import (
	"slices"
	"time"

	"github.com/ashureev/shsh-practice/internal/domain"
)

// Merge combines an existing chronological list with a new batch.
//
// Messages are keyed by ID; existing entries are inserted first and batch
// entries second, so a batch entry replaces an existing one with the same ID
// while keeping its original position. The result is stably sorted ascending
// by CreatedAt, with missing or unparseable timestamps ordered first.
// Neither input is modified.
func Merge(existing, batch []domain.ChatMessage) []domain.ChatMessage {
	index := make(map[string]int, len(existing)+len(batch))
	merged := make([]domain.ChatMessage, 0, len(existing)+len(batch))

	put := func(m domain.ChatMessage) {
		if i, ok := index[m.ID]; ok {
			merged[i] = m
			return
		}
		index[m.ID] = len(merged)
		merged = append(merged, m)
	}
	for _, m := range existing {
		put(m)
	}
	for _, m := range batch {
		put(m)
	}

	type keyed struct {
		ts  time.Time
		ok  bool
		msg domain.ChatMessage
	}
	sorted := make([]keyed, len(merged))
	for i, m := range merged {
		ts, ok := m.Timestamp()
		sorted[i] = keyed{ts: ts, ok: ok, msg: m}
	}
	slices.SortStableFunc(sorted, func(a, b keyed) int {
		switch {
		case !a.ok && !b.ok:
			return 0
		case !a.ok:
			return -1
		case !b.ok:
			return 1
		}
		return a.ts.Compare(b.ts)
	})

	for i := range sorted {
		merged[i] = sorted[i].msg
	}
	return merged
}

// chronological returns a newest-first page as a new oldest-first slice.
func chronological(page []domain.ChatMessage) []domain.ChatMessage {
	out := slices.Clone(page)
	slices.Reverse(out)
	return out
}
