// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ButtonDefinition model (the button registry).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a button is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateButton(ctx, db, b) -> error
//     Inserts a new ButtonDefinition row. The link may be a placeholder;
//     two-phase publish patches it once the channel message id is known.
//
//   - PatchButtonLink(ctx, db, id, link) -> error
//     Overwrites the placeholder link exactly once, immediately after
//     publish. Returns ErrNotFound if the button does not exist.
//
//   - GetButton(ctx, db, id) -> *domain.ButtonDefinition, error
//     Fetches a single button by primary key, or ErrNotFound.
//
//   - GetButtonByPost(ctx, db, channelID, messageID) -> *domain.ButtonDefinition, error
//     Resolves the button attached to a specific channel post.
//
//   - GetButtonByMessageID(ctx, db, messageID) -> *domain.ButtonDefinition, error
//     Resolves by post id alone, newest first, for deep links that do not
//     carry the channel.
//
//   - ListButtons / CountButtons / ListButtonsPage
//     Recency-ordered listing for the admin surface and the ops API.
//
//   - RegistryStats(ctx, db) -> count, maxCreatedAt, error
//     Cheap registry-wide aggregates, used for conditional (ETag) responses.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.PublishService) which enforces business rules and drives
// the two-phase publish against the messaging platform.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateButton inserts a new ButtonDefinition row. CreatedAt is set to UTC
// if the caller left it zero. The link may still be a placeholder at this
// point; the registry does not validate it.
//
// On success, the row's autoincrement ID is populated. On failure, it
// returns a DB error.
func CreateButton(ctx context.Context, db *gorm.DB, b *domain.ButtonDefinition) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(b).Error
}

// PatchButtonLink overwrites the link of the button identified by id. The
// publish flow calls this exactly once, immediately after the channel post
// is created, to swap the placeholder for the final deep link. If no rows
// are affected (button missing), it returns ErrNotFound.
func PatchButtonLink(ctx context.Context, db *gorm.DB, id int64, link string) error {
	res := db.WithContext(ctx).
		Model(&domain.ButtonDefinition{}).
		Where("id = ?", id).
		Update("link", link)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetButton fetches a single button by its primary key. If the record does
// not exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetButton(ctx context.Context, db *gorm.DB, id int64) (*domain.ButtonDefinition, error) {
	var b domain.ButtonDefinition
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetButtonByPost resolves the button attached to the (channelID, messageID)
// post, or ErrNotFound.
func GetButtonByPost(ctx context.Context, db *gorm.DB, channelID string, messageID int64) (*domain.ButtonDefinition, error) {
	var b domain.ButtonDefinition
	err := db.WithContext(ctx).
		Where("channel_id = ? AND message_id = ?", channelID, messageID).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetButtonByMessageID resolves a button by post message id alone, used for
// deep links that carry no channel. Message ids are only unique per channel,
// so when several channels reuse an id the most recently created definition
// wins. Returns ErrNotFound when nothing matches.
func GetButtonByMessageID(ctx context.Context, db *gorm.DB, messageID int64) (*domain.ButtonDefinition, error) {
	var b domain.ButtonDefinition
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at desc, id desc").
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListButtons returns all button definitions, ordered by creation time
// descending (most recent first). It returns an empty slice if nothing has
// been published. On DB error, it returns the error.
func ListButtons(ctx context.Context, db *gorm.DB) ([]domain.ButtonDefinition, error) {
	var out []domain.ButtonDefinition
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountButtons returns the total number of button definitions.
// On DB error, it returns the error.
func CountButtons(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ButtonDefinition{}).
		Count(&total).Error
	return total, err
}

// ListButtonsPage returns a paginated slice of button definitions, ordered
// by creation time descending. Use CountButtons to obtain the total for
// pagination metadata. On DB error, it returns the error.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListButtonsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ButtonDefinition, error) {
	var out []domain.ButtonDefinition
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RegistryStats returns the total number of button definitions and the most
// recent creation timestamp, or nil when the registry is empty. The listing
// endpoint derives its weak ETag from the pair.
func RegistryStats(ctx context.Context, db *gorm.DB) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ButtonDefinition{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
