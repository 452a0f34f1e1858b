// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// RedemptionEvent model (the click ledger). The ledger is append-only;
// there is deliberately no update or delete here.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// InsertRedemptionEvent appends one click row. buttonID and postID stay nil
// when the deep link could not be resolved to a known button; the raw source
// token is always preserved.
func InsertRedemptionEvent(ctx context.Context, db *gorm.DB, identityID, telegramID int64, buttonID *int64, source string, postID *int64) (*domain.RedemptionEvent, error) {
	ev := &domain.RedemptionEvent{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		TelegramID: telegramID,
		ButtonID:   buttonID,
		ClickedAt:  time.Now().UTC(),
		Source:     source,
		PostID:     postID,
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// CountClicksByButton returns the total number of ledger rows attributed to
// a button. On DB error, it returns the error.
func CountClicksByButton(ctx context.Context, db *gorm.DB, buttonID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.RedemptionEvent{}).
		Where("button_id = ?", buttonID).
		Count(&total).Error
	return total, err
}

// CountDistinctUsersByButton returns how many distinct identities clicked a
// button. Uses a raw COUNT(DISTINCT) so a missing table surfaces as an error.
func CountDistinctUsersByButton(ctx context.Context, db *gorm.DB, buttonID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(DISTINCT telegram_id) FROM channel_button_clicks WHERE button_id = ?", buttonID).
		Scan(&total).Error
	return total, err
}

// ListEventsByButton returns ledger rows for a button ordered
// deterministically (ClickedAt ASC, ID ASC).
func ListEventsByButton(ctx context.Context, db *gorm.DB, buttonID int64, limit int) ([]domain.RedemptionEvent, error) {
	var out []domain.RedemptionEvent
	q := db.WithContext(ctx).
		Where("button_id = ?", buttonID).
		Order("clicked_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountEvents returns the total number of ledger rows across all buttons,
// resolved and unresolved alike.
func CountEvents(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.RedemptionEvent{}).
		Count(&total).Error
	return total, err
}
