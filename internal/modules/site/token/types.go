package token

import (
	"time"

	"github.com/pulsetrack/pulse/internal/models"
)

// CreateTokenDTO is the public wizard's request body.
type CreateTokenDTO struct {
	SiteURL        string                 `json:"siteUrl"`
	SiteName       string                 `json:"siteName"`
	WidgetDefaults *models.WidgetDefaults `json:"widgetDefaults"`
}

// CreateInput describes a token to issue.
type CreateInput struct {
	SiteURL        string
	SiteName       string
	WidgetDefaults models.WidgetDefaults
	Public         bool
}

// SetBlockedDTO is the admin moderation body.
type SetBlockedDTO struct {
	Token     string `json:"token"      binding:"required"`
	IsBlocked *bool  `json:"is_blocked" binding:"required"`
}

type createdResponse struct {
	Token     string    `json:"token"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// publicTokenResponse is what anyone holding a token may read about it.
type publicTokenResponse struct {
	Token          string                `json:"token"`
	CreatedAt      time.Time             `json:"created_at"`
	SiteURL        *string               `json:"site_url"`
	SiteName       *string               `json:"site_name"`
	WidgetDefaults models.WidgetDefaults `json:"widget_defaults"`
}

func toPublic(t *models.TokenModel) publicTokenResponse {
	return publicTokenResponse{
		Token:          t.Token,
		CreatedAt:      t.CreatedAt,
		SiteURL:        t.SiteURL,
		SiteName:       t.SiteName,
		WidgetDefaults: t.WidgetDefaults.Data(),
	}
}
