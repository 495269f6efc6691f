package token

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/pkg/apperr"
	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/pagination"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

const (
	maxCreateAttempts = 5
	maxSiteNameLen    = 255
	maxSiteURLLen     = 2048
)

var (
	errInvalidFormat = apperr.Validation("Invalid token format")
	errNotFound      = apperr.NotFound("Token not found")
	errBlocked       = apperr.Forbidden("Token is blocked")
)

// DataPurger removes rows owned by a token from a store that is not the
// token table itself.
type DataPurger interface {
	DeleteToken(ctx context.Context, token string) (int64, error)
}

type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	metrics   *metrics.Metrics
	sanitizer *bluemonday.Policy
	generate  func() (string, error)
	purgers   []DataPurger
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithGenerator replaces the random candidate source.
func WithGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.generate = fn }
}

// WithPurgers registers stores whose rows are removed with a token.
func WithPurgers(p ...DataPurger) Option {
	return func(s *Service) { s.purgers = append(s.purgers, p...) }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		logger:    zap.NewNop(),
		sanitizer: bluemonday.StrictPolicy(),
		generate:  func() (string, error) { return Generate(GeneratedLength) },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("token")
	return s
}

// Create issues a new token. Candidates that collide with an existing token
// are retried up to five times; the unique index is the final arbiter.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.TokenModel, error) {
	siteName, err := s.cleanSiteName(in.SiteName)
	if err != nil {
		return nil, err
	}
	siteURL, err := s.cleanSiteURL(in.SiteURL)
	if err != nil {
		return nil, err
	}
	widget := in.WidgetDefaults.Normalize()
	if err := widget.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		candidate, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		row := &models.TokenModel{
			Token:            candidate,
			SiteURL:          siteURL,
			SiteName:         siteName,
			WidgetDefaults:   datatypes.NewJSONType(widget),
			CreatedViaPublic: in.Public,
		}
		err = s.db.WithContext(ctx).Create(row).Error
		if err == nil {
			s.metrics.RecordTokenCreated()
			s.logger.Info("token created", zap.String("token", row.Token), zap.Bool("public", in.Public))
			return row, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Storage("Failed to create token", err)
		}
		s.logger.Debug("token candidate collided", zap.Int("attempt", attempt))
	}
	return nil, apperr.Storage("Failed to generate unique token", nil)
}

// Get returns the token row regardless of its blocked state.
func (s *Service) Get(ctx context.Context, token string) (*models.TokenModel, error) {
	if !ValidateFormat(token) {
		return nil, errInvalidFormat
	}
	var row models.TokenModel
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, apperr.Storage("Failed to load token", err)
	}
	return &row, nil
}

// Resolve returns an active token. Malformed tokens fail validation before
// any storage access; unknown tokens are not found and blocked ones forbidden.
func (s *Service) Resolve(ctx context.Context, token string) (*models.TokenModel, error) {
	row, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if row.IsBlocked {
		return nil, errBlocked
	}
	return row, nil
}

// List pages through tokens, newest first.
func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.TokenModel, response.Pagination, error) {
	var items []models.TokenModel
	tx := s.db.WithContext(ctx).Model(&models.TokenModel{}).Order("created_at DESC").Order("id")
	pag, err := pagination.Paginate(tx, q, &items)
	if err != nil {
		return nil, response.Pagination{}, apperr.Storage("Failed to list tokens", err)
	}
	return items, pag, nil
}

// Counts summarizes the registry for the admin dashboard.
func (s *Service) Counts(ctx context.Context) (total, blocked int64, err error) {
	db := s.db.WithContext(ctx).Model(&models.TokenModel{})
	if err = db.Count(&total).Error; err != nil {
		return 0, 0, apperr.Storage("Failed to count tokens", err)
	}
	if err = s.db.WithContext(ctx).Model(&models.TokenModel{}).Where("is_blocked = ?", true).Count(&blocked).Error; err != nil {
		return 0, 0, apperr.Storage("Failed to count tokens", err)
	}
	return total, blocked, nil
}

// ListTokens returns every token string, used by maintenance jobs.
func (s *Service) ListTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if err := s.db.WithContext(ctx).Model(&models.TokenModel{}).Pluck("token", &tokens).Error; err != nil {
		return nil, apperr.Storage("Failed to list tokens", err)
	}
	return tokens, nil
}

// SetBlocked toggles moderation state.
func (s *Service) SetBlocked(ctx context.Context, token string, blocked bool) (*models.TokenModel, error) {
	row, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(row).Update("is_blocked", blocked).Error; err != nil {
		return nil, apperr.Storage("Failed to update token", err)
	}
	row.IsBlocked = blocked
	s.logger.Info("token moderated", zap.String("token", token), zap.Bool("blocked", blocked))
	return row, nil
}

// Delete removes the token, then every presence and event row it owns. Once
// the token row is gone the collector rejects new writes for it, so the
// cascade cannot race with fresh data.
func (s *Service) Delete(ctx context.Context, token string) error {
	row, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(row).Error; err != nil {
		return apperr.Storage("Failed to delete token", err)
	}

	var errs []error
	for _, p := range s.purgers {
		n, err := p.DeleteToken(ctx, token)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("token data purged", zap.String("token", token), zap.Int64("rows", n))
	}
	if err := errors.Join(errs...); err != nil {
		return apperr.Storage("Failed to delete token data", err)
	}
	s.logger.Info("token deleted", zap.String("token", token))
	return nil
}

// maxSanitizePasses bounds plainText; each pass peels one layer of entity
// encoding.
const maxSanitizePasses = 4

// plainText strips markup until sanitising and unescaping no longer change
// the value, so entity-encoded tags cannot survive as live markup.
func (s *Service) plainText(raw string) (string, error) {
	text := raw
	for range maxSanitizePasses {
		next := html.UnescapeString(s.sanitizer.Sanitize(text))
		if next == text {
			return strings.TrimSpace(text), nil
		}
		text = next
	}
	return "", apperr.Validation("Invalid markup in site metadata")
}

func (s *Service) cleanSiteName(raw string) (*string, error) {
	name, err := s.plainText(raw)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(name) > maxSiteNameLen {
		return nil, apperr.Validation("siteName is too long")
	}
	return &name, nil
}

func (s *Service) cleanSiteURL(raw string) (*string, error) {
	raw, err := s.plainText(raw)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	if len(raw) > maxSiteURLLen {
		return nil, apperr.Validation("siteUrl is too long")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperr.Validation("Invalid siteUrl")
	}
	clean := u.String()
	return &clean, nil
}
