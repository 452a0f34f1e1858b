package domain

import "time"

// ProcessedUpdate records a Telegram update id that has already been
// dispatched. Telegram redelivers updates on webhook retries and after
// polling restarts; the unique index on UpdateID lets the dispatcher drop
// duplicates before any side effect runs. Rows expire and are purged after
// the configured dedup TTL.
type ProcessedUpdate struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UpdateID  int64     `gorm:"not null;uniqueIndex:ux_processed_update_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedUpdate) TableName() string { return "processed_updates" }
