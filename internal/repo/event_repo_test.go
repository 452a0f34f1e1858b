package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

func newEventDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// seedLedger migrates the full click schema and inserts one identity and one
// button so FK-bearing rows have something to point at.
func seedLedger(t *testing.T) (*gorm.DB, *domain.Identity, *domain.ButtonDefinition) {
	t.Helper()
	db := newEventDB(t, &domain.Identity{}, &domain.ButtonDefinition{}, &domain.RedemptionEvent{})

	id := &domain.Identity{TelegramID: 100, Username: "alice"}
	if err := db.Create(id).Error; err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	b := &domain.ButtonDefinition{
		ChannelID: "@promo", MessageID: 7,
		ButtonText: "Get it", Kind: domain.RewardBotAccess, Link: "l", CreatedBy: 1,
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed button: %v", err)
	}
	return db, id, b
}

func TestInsertRedemptionEvent_Error_NoTable(t *testing.T) {
	db := newEventDB(t /* no migrations */)
	ev, err := InsertRedemptionEvent(context.Background(), db, 1, 100, nil, "channel_button", nil)
	if err == nil || ev != nil {
		t.Fatalf("expected error inserting without table, got ev=%v err=%v", ev, err)
	}
}

func TestInsertRedemptionEvent_ResolvedButton(t *testing.T) {
	db, id, b := seedLedger(t)

	start := time.Now().UTC().Add(-time.Minute)
	postID := b.MessageID
	ev, err := InsertRedemptionEvent(context.Background(), db, id.ID, id.TelegramID, &b.ID, "channel_button_7", &postID)
	if err != nil {
		t.Fatalf("InsertRedemptionEvent: %v", err)
	}
	if ev.ID == "" || ev.IdentityID != id.ID || ev.TelegramID != 100 {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
	if ev.ButtonID == nil || *ev.ButtonID != b.ID || ev.PostID == nil || *ev.PostID != 7 {
		t.Fatalf("button attribution lost: %+v", ev)
	}
	if ev.ClickedAt.Before(start) {
		t.Fatalf("ClickedAt seems unset: %v", ev.ClickedAt)
	}
	// round-trip
	var got domain.RedemptionEvent
	if err := db.First(&got, "id = ?", ev.ID).Error; err != nil {
		t.Fatalf("load created event: %v", err)
	}
	if got.Source != "channel_button_7" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestInsertRedemptionEvent_UnresolvedButton_NullColumns(t *testing.T) {
	db, id, _ := seedLedger(t)

	postID := int64(999)
	ev, err := InsertRedemptionEvent(context.Background(), db, id.ID, id.TelegramID, nil, "channel_button_999", &postID)
	if err != nil {
		t.Fatalf("InsertRedemptionEvent: %v", err)
	}
	var got domain.RedemptionEvent
	if err := db.First(&got, "id = ?", ev.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ButtonID != nil {
		t.Fatalf("expected null button_id, got %v", *got.ButtonID)
	}
	if got.PostID == nil || *got.PostID != 999 {
		t.Fatalf("raw post id not preserved: %+v", got)
	}
}

func TestCountClicksByButton(t *testing.T) {
	db, id, b := seedLedger(t)

	other := &domain.ButtonDefinition{
		ChannelID: "@promo", MessageID: 8,
		ButtonText: "x", Kind: domain.RewardExternalLink, Link: "l", CreatedBy: 1,
	}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("seed other button: %v", err)
	}

	// b has 2 clicks, other has 1
	for _, bid := range []*int64{&b.ID, &b.ID, &other.ID} {
		if _, err := InsertRedemptionEvent(context.Background(), db, id.ID, id.TelegramID, bid, "channel_button_7", nil); err != nil {
			t.Fatalf("seed click: %v", err)
		}
	}

	total, err := CountClicksByButton(context.Background(), db, b.ID)
	if err != nil {
		t.Fatalf("CountClicksByButton: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %d", total)
	}
}

func TestCountDistinctUsersByButton_Error_NoTable(t *testing.T) {
	db := newEventDB(t /* no migrations */)
	if _, err := CountDistinctUsersByButton(context.Background(), db, 1); err == nil {
		t.Fatalf("expected error when table missing")
	}
}

func TestCountDistinctUsersByButton_CollapsesRepeatClicks(t *testing.T) {
	db, id, b := seedLedger(t)

	second := &domain.Identity{TelegramID: 200, Username: "bob"}
	if err := db.Create(second).Error; err != nil {
		t.Fatalf("seed second identity: %v", err)
	}

	// alice clicks twice, bob once: 3 rows, 2 distinct users
	clicks := []struct {
		identity *domain.Identity
	}{{id}, {id}, {second}}
	for i, c := range clicks {
		if _, err := InsertRedemptionEvent(context.Background(), db, c.identity.ID, c.identity.TelegramID, &b.ID, "channel_button_7", nil); err != nil {
			t.Fatalf("seed click %d: %v", i, err)
		}
	}

	users, err := CountDistinctUsersByButton(context.Background(), db, b.ID)
	if err != nil {
		t.Fatalf("CountDistinctUsersByButton: %v", err)
	}
	if users != 2 {
		t.Fatalf("expected 2 distinct users, got %d", users)
	}
}

func TestListEventsByButton_OrderAndLimit(t *testing.T) {
	db, id, b := seedLedger(t)

	// Seed 3 clicks with increasing ClickedAt so ASC order is deterministic.
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ev := &domain.RedemptionEvent{
			ID:         fmt.Sprintf("ev-%d", i),
			IdentityID: id.ID,
			TelegramID: id.TelegramID,
			ButtonID:   &b.ID,
			ClickedAt:  base.Add(time.Duration(i) * time.Minute),
			Source:     "channel_button_7",
		}
		if err := db.Create(ev).Error; err != nil {
			t.Fatalf("seed ev-%d: %v", i, err)
		}
	}

	list, err := ListEventsByButton(context.Background(), db, b.ID, 0)
	if err != nil {
		t.Fatalf("ListEventsByButton: %v", err)
	}
	if len(list) != 3 || list[0].ID != "ev-0" || list[2].ID != "ev-2" {
		t.Fatalf("unexpected order: %+v", list)
	}

	limited, err := ListEventsByButton(context.Background(), db, b.ID, 2)
	if err != nil {
		t.Fatalf("ListEventsByButton limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 rows with limit, got %d", len(limited))
	}
}

func TestCountEvents_IncludesUnresolved(t *testing.T) {
	db, id, b := seedLedger(t)

	if _, err := InsertRedemptionEvent(context.Background(), db, id.ID, id.TelegramID, &b.ID, "channel_button_7", nil); err != nil {
		t.Fatalf("seed resolved: %v", err)
	}
	if _, err := InsertRedemptionEvent(context.Background(), db, id.ID, id.TelegramID, nil, "channel_button", nil); err != nil {
		t.Fatalf("seed unresolved: %v", err)
	}

	total, err := CountEvents(context.Background(), db)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %d", total)
	}
}
