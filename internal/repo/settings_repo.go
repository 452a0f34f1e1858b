// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Setting
// model (key/value bot configuration).
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving fallback logic (configured defaults when a key
// is absent) to the services package.
//
// Error semantics:
//   - GetSetting returns ErrNotFound when the key has never been written.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// GetSetting fetches the value stored under key, or ErrNotFound.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (*domain.Setting, error) {
	var s domain.Setting
	err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSetting writes value under key, recording which administrator made
// the change. Create-then-update keeps the row's CreatedAt stable across
// rewrites; a concurrent first write is resolved by the unique index on key.
func UpsertSetting(ctx context.Context, db *gorm.DB, key, value string, updatedBy int64) (*domain.Setting, error) {
	now := time.Now().UTC()

	var s domain.Setting
	err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec := &domain.Setting{
			Key:       key,
			Value:     value,
			UpdatedBy: updatedBy,
			CreatedAt: now,
			UpdatedAt: now,
		}
		cerr := db.WithContext(ctx).Create(rec).Error
		if cerr == nil {
			return rec, nil
		}
		if !isUniqueViolation(cerr) {
			return nil, cerr
		}
		if err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"value":      value,
		"updated_by": updatedBy,
		"updated_at": now,
	}
	if err := db.WithContext(ctx).Model(&s).Updates(updates).Error; err != nil {
		return nil, err
	}
	s.Value = value
	s.UpdatedBy = updatedBy
	s.UpdatedAt = now
	return &s, nil
}
