package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so constraints actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Identity{}).TableName() != "identities" {
		t.Fatalf("Identity.TableName() = %q; want %q", (Identity{}).TableName(), "identities")
	}
	if (ButtonDefinition{}).TableName() != "channel_buttons" {
		t.Fatalf("ButtonDefinition.TableName() = %q; want %q", (ButtonDefinition{}).TableName(), "channel_buttons")
	}
	if (RedemptionEvent{}).TableName() != "channel_button_clicks" {
		t.Fatalf("RedemptionEvent.TableName() = %q; want %q", (RedemptionEvent{}).TableName(), "channel_button_clicks")
	}
	if (Setting{}).TableName() != "bot_settings" {
		t.Fatalf("Setting.TableName() = %q; want %q", (Setting{}).TableName(), "bot_settings")
	}
}

func TestRewardKind_Valid(t *testing.T) {
	if !RewardBotAccess.Valid() || !RewardExternalLink.Valid() {
		t.Fatalf("expected built-in kinds to be valid")
	}
	if RewardKind("paper").Valid() {
		t.Fatalf("unknown kind should not be valid")
	}
}

func TestMigrations_Indexes_AndNullableButtonRef(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Identity{}, &ButtonDefinition{}, &RedemptionEvent{}, &Setting{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	// Tables exist
	for _, tbl := range []any{&Identity{}, &ButtonDefinition{}, &RedemptionEvent{}, &Setting{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Indexes from tags exist
	if !m.HasIndex(&Identity{}, "ux_identities_telegram_id") {
		t.Fatalf("expected unique index ux_identities_telegram_id on identities")
	}
	if !m.HasIndex(&ButtonDefinition{}, "ux_buttons_channel_post") {
		t.Fatalf("expected unique index ux_buttons_channel_post on channel_buttons")
	}
	if !m.HasIndex(&RedemptionEvent{}, "idx_clicks_button") {
		t.Fatalf("expected index idx_clicks_button on channel_button_clicks")
	}
	if !m.HasIndex(&Setting{}, "ux_settings_key") {
		t.Fatalf("expected unique index ux_settings_key on bot_settings")
	}

	now := time.Now().UTC()

	id := &Identity{TelegramID: 42, Username: "alice", FirstName: "Alice", CreatedAt: now, LastActivity: now}
	if err := db.Create(id).Error; err != nil {
		t.Fatalf("insert identity: %v", err)
	}

	// Duplicate platform id must be rejected.
	dup := &Identity{TelegramID: 42, CreatedAt: now, LastActivity: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on telegram_id")
	}

	btn := &ButtonDefinition{
		ChannelID:  "@chan",
		MessageID:  100,
		PostTitle:  "Free Guide",
		ButtonText: "Get it",
		Kind:       RewardExternalLink,
		Link:       "https://example.com/guide",
		CreatedAt:  now,
		CreatedBy:  7,
	}
	if err := db.Create(btn).Error; err != nil {
		t.Fatalf("insert button: %v", err)
	}

	// Same (channel, message id) pair must be rejected.
	clash := &ButtonDefinition{ChannelID: "@chan", MessageID: 100, ButtonText: "x", Kind: RewardBotAccess, Link: "l", CreatedBy: 7}
	if err := db.Create(clash).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (channel_id, message_id)")
	}

	// Click with a resolved button.
	ev := &RedemptionEvent{
		ID:         "e1",
		IdentityID: id.ID,
		TelegramID: 42,
		ButtonID:   &btn.ID,
		ClickedAt:  now,
		Source:     "channel_button_100",
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}

	// Click with a null button reference (legacy link) is legal.
	post := int64(999)
	orphan := &RedemptionEvent{
		ID:         "e2",
		IdentityID: id.ID,
		TelegramID: 42,
		ClickedAt:  now,
		Source:     "channel_button_999",
		PostID:     &post,
	}
	if err := db.Create(orphan).Error; err != nil {
		t.Fatalf("insert orphan event: %v", err)
	}

	var got RedemptionEvent
	if err := db.First(&got, "id = ?", "e2").Error; err != nil {
		t.Fatalf("readback orphan: %v", err)
	}
	if got.ButtonID != nil {
		t.Fatalf("expected null button id, got %v", *got.ButtonID)
	}
	if got.PostID == nil || *got.PostID != 999 {
		t.Fatalf("expected post id 999 preserved, got %v", got.PostID)
	}

	// Bad identity reference must be rejected while FKs are on.
	bad := &RedemptionEvent{ID: "e3", IdentityID: 424242, TelegramID: 1, ClickedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected FK violation for unknown identity")
	}
}
