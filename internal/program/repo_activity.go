package program

import (
	"context"
	"time"
)

const (
	defaultActivityPage = 50
	maxActivityPage     = 200
)

// ActivityLimit returns the page size ListActivity applies for limit.
func ActivityLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultActivityPage
	case limit > maxActivityPage:
		return maxActivityPage
	}
	return limit
}

// RecordActivity appends one entry to the activity feed.
func (r *Repository) RecordActivity(ctx context.Context, a *ActivityLog) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(a).Error
}

// ListActivity pages through the feed, newest first.
func (r *Repository) ListActivity(ctx context.Context, limit, offset int) ([]ActivityLog, error) {
	limit = ActivityLimit(limit)
	if offset < 0 {
		offset = 0
	}
	var out []ActivityLog
	err := r.db.WithContext(ctx).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
