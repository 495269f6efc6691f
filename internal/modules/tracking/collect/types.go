package collect

import "github.com/pulsetrack/pulse/internal/models"

const (
	maxVisitorIDLen = 128
	maxURLFieldLen  = 2048
)

// CollectDTO is the body the loader sends with sendBeacon or fetch.
type CollectDTO struct {
	Token     string `json:"token"     binding:"required"`
	VisitorID string `json:"visitorId" binding:"required"`
	Type      string `json:"type"      binding:"required"`
	Path      string `json:"path"`
	Referrer  string `json:"referrer"`
}

// Outcome of an accepted collect request.
type Outcome int

const (
	Recorded Outcome = iota
	// Skipped means the heartbeat was throttled and nothing was written.
	Skipped
)

func validType(t string) bool {
	return t == models.EventPageview || t == models.EventHeartbeat
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
