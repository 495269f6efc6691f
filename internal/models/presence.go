package models

import "time"

// PresenceModel is the last sighting of a visitor on a site.
type PresenceModel struct {
	Token      string    `gorm:"primaryKey;size:32"`
	VisitorID  string    `gorm:"primaryKey;size:128"`
	LastSeenAt time.Time `gorm:"not null;index"`
	Path       string    `gorm:"size:2048"`
	Referrer   string    `gorm:"size:2048"`
}

func (PresenceModel) TableName() string { return "presence" }
