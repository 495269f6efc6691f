package bark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const (
	defaultServerURL = "https://day.app"
	defaultThrottle  = time.Hour
	alertGroup       = "pulse"
)

var ErrNotConfigured = errors.New("bark key not configured")

// Service sends iOS push notifications via the Bark API.
type Service struct {
	key        string
	serverURL  string
	httpClient *http.Client
	clock      quartz.Clock

	mu         sync.Mutex
	lastPushAt map[string]time.Time
	throttleD  time.Duration
}

type Option func(*Service)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.httpClient = client }
}

func WithClock(clock quartz.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithThrottle sets the minimum gap between alerts for the same subject.
func WithThrottle(d time.Duration) Option {
	return func(s *Service) { s.throttleD = d }
}

// New creates a Bark service. An empty key yields a service whose pushes are
// no-ops reported as ErrNotConfigured.
func New(key, serverURL string, opts ...Option) *Service {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	s := &Service{
		key:        strings.TrimSpace(key),
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      quartz.NewReal(),
		lastPushAt: make(map[string]time.Time),
		throttleD:  defaultThrottle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a device key is configured.
func (s *Service) Enabled() bool { return s.key != "" }

type pushPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Group     string `json:"group,omitempty"`
}

// Push sends a Bark notification immediately (no throttle).
func (s *Service) Push(ctx context.Context, title, body string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}

	b, err := json.Marshal(pushPayload{
		DeviceKey: s.key,
		Title:     "[Pulse] " + title,
		Body:      body,
		Group:     alertGroup,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/push", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bark push: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// AlertAbuse reports a token whose recent event volume crossed the abuse
// threshold, at most once per throttle window per token. It reports whether a
// push was attempted.
func (s *Service) AlertAbuse(ctx context.Context, token string, events int64, threshold int) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	now := s.clock.Now()
	s.mu.Lock()
	last, ok := s.lastPushAt[token]
	if ok && now.Sub(last) < s.throttleD {
		s.mu.Unlock()
		return false, nil
	}
	s.lastPushAt[token] = now
	s.mu.Unlock()

	body := fmt.Sprintf("Token %s recorded %d events in 24h (threshold %d)", token, events, threshold)
	return true, s.Push(ctx, "Potential abuse", body)
}
