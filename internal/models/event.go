package models

import "time"

const (
	EventPageview  = "pageview"
	EventHeartbeat = "heartbeat"
)

// EventModel is an append-only pageview record.
type EventModel struct {
	Base
	Token     string    `gorm:"size:32;not null;index:idx_events_token_created,priority:1"`
	VisitorID string    `gorm:"size:128;not null"`
	Type      string    `gorm:"size:16;not null"`
	Path      string    `gorm:"size:2048"`
	Referrer  string    `gorm:"size:2048"`
	CreatedAt time.Time `gorm:"not null;index;index:idx_events_token_created,priority:2"`
}

func (EventModel) TableName() string { return "events" }
