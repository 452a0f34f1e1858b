// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// ProcessedUpdate model used to drop Telegram updates that have already
// been dispatched (webhook retries, polling restarts).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// ErrDuplicate indicates that the given Telegram update id was already
// recorded, i.e. the update has been dispatched before.
var ErrDuplicate = errors.New("duplicate")

// MarkUpdateProcessed inserts a dedup record for updateID and returns
// ErrDuplicate on unique violation. Callers claim the update first and only
// run side effects when the claim succeeds.
func MarkUpdateProcessed(ctx context.Context, db *gorm.DB, updateID int64, ttl time.Duration) (*domain.ProcessedUpdate, error) {
	now := time.Now().UTC()
	rec := &domain.ProcessedUpdate{
		ID:        uuid.NewString(),
		UpdateID:  updateID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredUpdates deletes dedup rows whose TTL has passed and reports
// how many were removed. Telegram stops redelivering long before the TTL,
// so losing a purged row never double-dispatches.
func PurgeExpiredUpdates(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.ProcessedUpdate{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either supported driver. glebarez/sqlite often returns plain-text errors
// for UNIQUE violations; Postgres reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}
