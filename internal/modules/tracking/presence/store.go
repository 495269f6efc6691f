// Package presence tracks which visitors were recently seen on each site.
//
// Presence is last-write-wins per (token, visitor) with a monotonic timestamp.
// Nothing expires physically on the read path: a visitor is online when its
// last sighting falls inside the freshness window at query time, and stale
// rows are reclaimed by a periodic cleanup for hygiene only.
package presence

import (
	"context"
	"time"
)

// Sighting is one observation of a visitor.
type Sighting struct {
	Token     string
	VisitorID string
	Path      string
	Referrer  string
	At        time.Time
}

// Store persists presence rows.
type Store interface {
	// Touch upserts the row for (Token, VisitorID). It never creates a
	// duplicate and never moves last_seen_at backwards.
	Touch(ctx context.Context, s Sighting) error
	// CountOnline counts visitors of token seen at or after since.
	CountOnline(ctx context.Context, token string, since time.Time) (int64, error)
	// CountOnlineAll counts visitors of every token seen at or after since.
	CountOnlineAll(ctx context.Context, since time.Time) (int64, error)
	// Cleanup removes rows last seen before cutoff.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteToken removes every row of token.
	DeleteToken(ctx context.Context, token string) (int64, error)
}
