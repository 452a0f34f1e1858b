// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries over
// the click ledger, used by the admin stats command and the ops API. Each
// function is context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// ButtonStats returns aggregate metadata for one button's ledger rows: the
// total click count, the number of distinct identities behind those clicks,
// and the most recent click timestamp.
//
// When the button has no clicks, counts are 0 and lastClickAt is nil.
//
// Return values:
//   - clicks:      total ledger rows for buttonID
//   - users:       distinct telegram ids among those rows
//   - lastClickAt: pointer to the greatest ClickedAt, or nil if no rows
//   - err:         database error, if any
func ButtonStats(ctx context.Context, db *gorm.DB, buttonID int64) (clicks, users int64, lastClickAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RedemptionEvent{}).Where("button_id = ?", buttonID)

	// Count
	if err = q.Count(&clicks).Error; err != nil {
		return 0, 0, nil, err
	}
	if clicks == 0 {
		return 0, 0, nil, nil
	}

	if users, err = CountDistinctUsersByButton(ctx, db, buttonID); err != nil {
		return 0, 0, nil, err
	}

	// Get latest clicked_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		ClickedAt time.Time
	}
	if err = q.Select("clicked_at").Order("clicked_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return clicks, users, &row.ClickedAt, nil
}

// LedgerStats returns ledger-wide aggregate metadata: total rows and the
// maximum ClickedAt timestamp, across resolved and unresolved clicks alike.
//
// Return values:
//   - count:       total ledger rows
//   - maxClickAt:  pointer to the greatest ClickedAt, or nil if no rows
//   - err:         database error, if any
func LedgerStats(ctx context.Context, db *gorm.DB) (count int64, maxClickAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RedemptionEvent{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest clicked_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		ClickedAt time.Time
	}
	if err = q.Select("clicked_at").Order("clicked_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.ClickedAt, nil
}
