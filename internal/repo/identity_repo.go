// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Identity
// model: one row per Telegram account, created lazily on first contact.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - When an identity is not found, functions return ErrNotFound.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// UpsertIdentity returns the identity row for telegramID, creating it on
// first contact. On later contacts it refreshes last_activity and any profile
// fields that drifted (users rename themselves). Two updates racing the same
// first contact are resolved by the unique index on telegram_id: the loser
// re-reads the winner's row and takes the update path.
func UpsertIdentity(ctx context.Context, db *gorm.DB, telegramID int64, username, firstName, lastName string) (*domain.Identity, error) {
	now := time.Now().UTC()

	var id domain.Identity
	err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec := &domain.Identity{
			TelegramID:   telegramID,
			Username:     username,
			FirstName:    firstName,
			LastName:     lastName,
			CreatedAt:    now,
			LastActivity: now,
		}
		cerr := db.WithContext(ctx).Create(rec).Error
		if cerr == nil {
			return rec, nil
		}
		if !isUniqueViolation(cerr) {
			return nil, cerr
		}
		// Lost the insert race; the row exists now.
		if err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&id).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"username":      username,
		"first_name":    firstName,
		"last_name":     lastName,
		"last_activity": now,
	}
	if err := db.WithContext(ctx).Model(&id).Updates(updates).Error; err != nil {
		return nil, err
	}
	id.Username = username
	id.FirstName = firstName
	id.LastName = lastName
	id.LastActivity = now
	return &id, nil
}

// GetIdentity fetches an identity by its Telegram id, or ErrNotFound.
func GetIdentity(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.Identity, error) {
	var id domain.Identity
	err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&id).Error
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// TouchIdentity refreshes last_activity for an existing identity. If no row
// matches telegramID it returns ErrNotFound.
func TouchIdentity(ctx context.Context, db *gorm.DB, telegramID int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Identity{}).
		Where("telegram_id = ?", telegramID).
		Update("last_activity", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountIdentities returns the total audience size. On DB error, it returns
// the error.
func CountIdentities(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Identity{}).
		Count(&total).Error
	return total, err
}
