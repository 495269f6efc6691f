package models

import (
	"time"

	"gorm.io/datatypes"
)

// TokenModel is a site registration. Every presence and event row belongs to
// exactly one token.
type TokenModel struct {
	Base
	Token            string                             `json:"token"              gorm:"size:32;not null;uniqueIndex"`
	CreatedAt        time.Time                          `json:"created_at"         gorm:"index"`
	IsBlocked        bool                               `json:"is_blocked"         gorm:"not null;default:false;index"`
	SiteURL          *string                            `json:"site_url"           gorm:"size:2048"`
	SiteName         *string                            `json:"site_name"          gorm:"size:255"`
	WidgetDefaults   datatypes.JSONType[WidgetDefaults] `json:"widget_defaults"`
	CreatedViaPublic bool                               `json:"created_via_public" gorm:"not null;default:false"`
}

func (TokenModel) TableName() string { return "tokens" }
