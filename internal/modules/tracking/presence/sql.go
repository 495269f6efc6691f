package presence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulsetrack/pulse/internal/models"
)

// SQLStore keeps presence in the presence table.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Touch tries a conditional update first so an older sighting never
// overwrites a newer one. When no row matched, the insert either creates the
// row or loses to a concurrent insert, in which case the conditional update is
// retried once against the winner.
func (s *SQLStore) Touch(ctx context.Context, v Sighting) error {
	at := v.At.UTC()
	db := s.db.WithContext(ctx)

	updated, err := s.updateIfNewer(db, v, at)
	if err != nil || updated {
		return err
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.PresenceModel{
		Token:      v.Token,
		VisitorID:  v.VisitorID,
		LastSeenAt: at,
		Path:       v.Path,
		Referrer:   v.Referrer,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	_, err = s.updateIfNewer(db, v, at)
	return err
}

func (s *SQLStore) updateIfNewer(db *gorm.DB, v Sighting, at time.Time) (bool, error) {
	res := db.Model(&models.PresenceModel{}).
		Where("token = ? AND visitor_id = ? AND last_seen_at <= ?", v.Token, v.VisitorID, at).
		Updates(map[string]any{
			"last_seen_at": at,
			"path":         v.Path,
			"referrer":     v.Referrer,
		})
	return res.RowsAffected > 0, res.Error
}

func (s *SQLStore) CountOnline(ctx context.Context, token string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PresenceModel{}).
		Where("token = ? AND last_seen_at >= ?", token, since.UTC()).
		Count(&n).Error
	return n, err
}

func (s *SQLStore) CountOnlineAll(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PresenceModel{}).
		Where("last_seen_at >= ?", since.UTC()).
		Count(&n).Error
	return n, err
}

func (s *SQLStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("last_seen_at < ?", cutoff.UTC()).Delete(&models.PresenceModel{})
	return res.RowsAffected, res.Error
}

func (s *SQLStore) DeleteToken(ctx context.Context, token string) (int64, error) {
	res := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.PresenceModel{})
	return res.RowsAffected, res.Error
}
