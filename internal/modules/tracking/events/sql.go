package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pulsetrack/pulse/internal/models"
)

// SQLLog keeps events in the events table.
type SQLLog struct {
	db *gorm.DB
}

func NewSQLLog(db *gorm.DB) *SQLLog {
	return &SQLLog{db: db}
}

func (l *SQLLog) Append(ctx context.Context, e Event) error {
	row := models.EventModel{
		Token:     e.Token,
		VisitorID: e.VisitorID,
		Type:      e.Type,
		Path:      e.Path,
		Referrer:  e.Referrer,
		CreatedAt: e.CreatedAt.UTC(),
	}
	row.ID = e.ID
	return l.db.WithContext(ctx).Create(&row).Error
}

func (l *SQLLog) TopPages(ctx context.Context, token string, since time.Time, limit int) ([]PageCount, error) {
	var out []PageCount
	err := l.db.WithContext(ctx).Model(&models.EventModel{}).
		Select("path, COUNT(DISTINCT visitor_id) AS visitor_count").
		Where("token = ? AND type = ? AND created_at >= ?", token, models.EventPageview, since.UTC()).
		Group("path").
		Order("visitor_count DESC").
		Order("path ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (l *SQLLog) Timeline(ctx context.Context, token string, since time.Time) ([]TimelinePoint, error) {
	var visits []Visit
	err := l.db.WithContext(ctx).Model(&models.EventModel{}).
		Select("visitor_id, created_at").
		Where("token = ? AND created_at >= ?", token, since.UTC()).
		Scan(&visits).Error
	if err != nil {
		return nil, err
	}
	return bucketByMinute(visits), nil
}

func (l *SQLLog) CountForToken(ctx context.Context, token string, since time.Time) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.EventModel{}).
		Where("token = ? AND created_at >= ?", token, since.UTC()).
		Count(&n).Error
	return n, err
}

func (l *SQLLog) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.EventModel{}).
		Where("created_at >= ?", since.UTC()).
		Count(&n).Error
	return n, err
}

func (l *SQLLog) TopTokens(ctx context.Context, since time.Time, limit int) ([]TokenCount, error) {
	var out []TokenCount
	err := l.db.WithContext(ctx).Model(&models.EventModel{}).
		Select("token, COUNT(*) AS events").
		Where("created_at >= ?", since.UTC()).
		Group("token").
		Order("events DESC").
		Order("token ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (l *SQLLog) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.EventModel{})
	return res.RowsAffected, res.Error
}

func (l *SQLLog) DeleteToken(ctx context.Context, token string) (int64, error) {
	res := l.db.WithContext(ctx).Where("token = ?", token).Delete(&models.EventModel{})
	return res.RowsAffected, res.Error
}
