package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/pulsetrack/pulse/internal/config"
)

// Policy binds a key namespace to a window and a maximum.
type Policy struct {
	Name   string
	Prefix string
	Window time.Duration
	Max    int
}

// Key builds the limiter key for the given parts.
func (p Policy) Key(parts ...string) string {
	return p.Prefix + ":" + strings.Join(parts, ":")
}

// Check consumes one request for parts under this policy.
func (p Policy) Check(ctx context.Context, l Limiter, parts ...string) (Result, error) {
	return l.Check(ctx, p.Key(parts...), p.Window, p.Max)
}

// Policies are the named limits applied by the HTTP layer.
type Policies struct {
	// API throttles every public request per client IP.
	API Policy
	// TokenCreate is the stricter per-IP bound on public token creation.
	TokenCreate Policy
	// Heartbeat allows one honored heartbeat per visitor per site per window.
	Heartbeat Policy
}

// PoliciesFromConfig builds the policy set from runtime configuration.
func PoliciesFromConfig(cfg config.RateLimitConfig) Policies {
	return Policies{
		API:         Policy{Name: "api", Prefix: "api", Window: cfg.APIWindow, Max: cfg.APIMax},
		TokenCreate: Policy{Name: "token_create", Prefix: "api:token-create", Window: cfg.APIWindow, Max: cfg.TokenCreateMax},
		Heartbeat:   Policy{Name: "heartbeat", Prefix: "heartbeat", Window: cfg.HeartbeatWindow, Max: cfg.HeartbeatMax},
	}
}

// DefaultPolicies mirrors the production limits: 100 requests per minute per
// IP, 10 token creations per minute per IP and one heartbeat per 10 seconds.
func DefaultPolicies() Policies {
	return Policies{
		API:         Policy{Name: "api", Prefix: "api", Window: time.Minute, Max: 100},
		TokenCreate: Policy{Name: "token_create", Prefix: "api:token-create", Window: time.Minute, Max: 10},
		Heartbeat:   Policy{Name: "heartbeat", Prefix: "heartbeat", Window: 10 * time.Second, Max: 1},
	}
}
