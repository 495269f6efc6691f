// Package events is the append-only pageview log and the aggregation queries
// derived from it.
package events

import (
	"context"
	"sort"
	"time"
)

// Event is one pageview.
type Event struct {
	ID        string
	Token     string
	VisitorID string
	Type      string
	Path      string
	Referrer  string
	CreatedAt time.Time
}

// PageCount is a path and the number of distinct visitors who viewed it.
type PageCount struct {
	Path         string `json:"path"`
	VisitorCount int64  `json:"visitor_count"`
}

// TimelinePoint is a one-minute bucket and its distinct visitors.
type TimelinePoint struct {
	Minute       time.Time `json:"minute"`
	VisitorCount int64     `json:"visitor_count"`
}

// TokenCount is the event volume of one token.
type TokenCount struct {
	Token  string `json:"token"`
	Events int64  `json:"event_count"`
}

// Log stores events. All queries are scoped to a single token except the
// operator-facing counts.
type Log interface {
	Append(ctx context.Context, e Event) error
	// TopPages returns paths viewed since, ordered by distinct visitors desc
	// then path asc.
	TopPages(ctx context.Context, token string, since time.Time, limit int) ([]PageCount, error)
	// Timeline returns non-empty minute buckets since, oldest first.
	Timeline(ctx context.Context, token string, since time.Time) ([]TimelinePoint, error)
	CountForToken(ctx context.Context, token string, since time.Time) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// TopTokens returns the busiest tokens since, ordered by events desc.
	TopTokens(ctx context.Context, since time.Time, limit int) ([]TokenCount, error)
	// Purge removes events created before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteToken(ctx context.Context, token string) (int64, error)
}

// Visit is the (visitor, time) pair the timeline is bucketed from.
type Visit struct {
	VisitorID string
	CreatedAt time.Time
}

// bucketByMinute counts distinct visitors per UTC minute.
func bucketByMinute(visits []Visit) []TimelinePoint {
	buckets := make(map[time.Time]map[string]struct{})
	for _, v := range visits {
		minute := v.CreatedAt.UTC().Truncate(time.Minute)
		set, ok := buckets[minute]
		if !ok {
			set = make(map[string]struct{})
			buckets[minute] = set
		}
		set[v.VisitorID] = struct{}{}
	}

	points := make([]TimelinePoint, 0, len(buckets))
	for minute, set := range buckets {
		points = append(points, TimelinePoint{Minute: minute, VisitorCount: int64(len(set))})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Minute.Before(points[j].Minute) })
	return points
}
