// Package domain defines the persistence models for identities, channel
// buttons, click events, and bot settings. These types are mapped with GORM
// and form the core data layer of the lead-magnet bot.
package domain

import (
	"time"
)

// RewardKind distinguishes what a channel button hands out once the
// subscription gate is passed.
type RewardKind string

const (
	// RewardBotAccess grants access to content served by the bot itself.
	RewardBotAccess RewardKind = "bot"
	// RewardExternalLink grants an off-platform URL.
	RewardExternalLink RewardKind = "external"
)

// Valid reports whether k is one of the known reward kinds.
func (k RewardKind) Valid() bool {
	return k == RewardBotAccess || k == RewardExternalLink
}

// SettingSubscriptionChannel is the settings key holding the channel whose
// membership gates reward release.
const SettingSubscriptionChannel = "subscription_channel"

// Identity represents one end user known to the bot, keyed by their stable
// Telegram user id. Rows are created lazily on first contact and are never
// deleted.
//
// Fields:
//   - ID: autoincrement primary key.
//   - TelegramID: stable platform identifier (unique, immutable).
//   - Username / FirstName / LastName: latest observed profile values.
//   - CreatedAt: first time the user was seen (registration).
//   - LastActivity: refreshed on every interaction.
type Identity struct {
	ID           int64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	TelegramID   int64     `json:"telegram_id"   gorm:"not null;uniqueIndex:ux_identities_telegram_id"`
	Username     string    `json:"username"      gorm:"type:varchar(255)"`
	FirstName    string    `json:"first_name"    gorm:"type:varchar(255)"`
	LastName     string    `json:"last_name"     gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity" gorm:"index"`
}

// TableName returns the database table name for Identity.
func (Identity) TableName() string { return "identities" }

// ButtonDefinition represents one reward-granting button attached to a
// channel post. The (channel, message id) pair is the lookup key that
// correlates an entry event back to its button. Rows are immutable after
// publish, except for a single link patch that embeds the real message id
// into bot-access deep links.
//
// Fields:
//   - ChannelID: channel username ("@chan") or numeric chat id the post lives in.
//   - MessageID: id of the published channel post.
//   - PostTitle: human label for the post (derived from the text if absent).
//   - ButtonText: caption shown on the inline button.
//   - Kind: bot-access or external-link reward.
//   - Link: destination handed out on redemption.
//   - CreatedBy: Telegram id of the publishing administrator.
type ButtonDefinition struct {
	ID         int64      `json:"id"          gorm:"primaryKey;autoIncrement"`
	ChannelID  string     `json:"channel_id"  gorm:"type:varchar(255);not null;uniqueIndex:ux_buttons_channel_post,priority:1"`
	MessageID  int64      `json:"message_id"  gorm:"not null;uniqueIndex:ux_buttons_channel_post,priority:2;index:idx_buttons_post"`
	PostTitle  string     `json:"post_title"  gorm:"type:varchar(255)"`
	ButtonText string     `json:"button_text" gorm:"type:varchar(255);not null"`
	Kind       RewardKind `json:"kind"        gorm:"type:varchar(16);not null;check:kind IN ('bot','external')"`
	Link       string     `json:"link"        gorm:"type:text;not null"`
	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  int64      `json:"created_by"  gorm:"not null"`
}

// TableName returns the database table name for ButtonDefinition.
func (ButtonDefinition) TableName() string { return "channel_buttons" }

// RedemptionEvent is one observed entry event attributable to a button click.
// The ledger is append-only: rows are written exactly once and never mutated
// or deleted. ButtonID stays null when the referenced button cannot be
// resolved (legacy links), with PostID preserving the raw reference for
// analytics.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - IdentityID: resolved identity (FK).
//   - TelegramID: raw platform id, denormalized for query convenience.
//   - ButtonID: resolved button, nullable.
//   - ClickedAt: event timestamp.
//   - Source: the raw deep-link payload as received.
//   - PostID: parsed numeric post id, nullable (kept for legacy analytics).
type RedemptionEvent struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	IdentityID int64     `json:"identity_id" gorm:"not null;index:idx_clicks_identity"`
	TelegramID int64     `json:"telegram_id" gorm:"not null;index:idx_clicks_telegram"`
	ButtonID   *int64    `json:"button_id"   gorm:"index:idx_clicks_button"`
	ClickedAt  time.Time `json:"clicked_at"  gorm:"not null;index"`
	Source     string    `json:"source"      gorm:"type:varchar(255)"`
	PostID     *int64    `json:"post_id"`

	// Identity is the clicking user. Ledger rows follow their identity.
	Identity Identity `json:"-" gorm:"foreignKey:IdentityID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	// Button is the resolved definition, absent for unresolvable references.
	Button *ButtonDefinition `json:"-" gorm:"foreignKey:ButtonID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for RedemptionEvent.
func (RedemptionEvent) TableName() string { return "channel_button_clicks" }

// Setting is a single mutable process-wide configuration value, keyed by
// name. The only key the bot currently writes is SettingSubscriptionChannel.
type Setting struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	Key       string    `json:"key"        gorm:"type:varchar(64);not null;uniqueIndex:ux_settings_key"`
	Value     string    `json:"value"      gorm:"type:varchar(255);not null"`
	UpdatedBy int64     `json:"updated_by" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return "bot_settings" }
