package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

// ---------- test helpers ----------

func newStatsSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:statssvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Identity{}, &domain.ButtonDefinition{}, &domain.RedemptionEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedStatsButton(t *testing.T, db *gorm.DB, messageID int64, createdAt time.Time) *domain.ButtonDefinition {
	t.Helper()
	b := &domain.ButtonDefinition{
		ChannelID:  "@promo",
		MessageID:  messageID,
		PostTitle:  fmt.Sprintf("Post %d", messageID),
		ButtonText: "Get it",
		Kind:       domain.RewardBotAccess,
		Link:       "https://t.me/bot?start=channel_button",
		CreatedAt:  createdAt,
		CreatedBy:  1,
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed button: %v", err)
	}
	return b
}

func seedStatsClick(t *testing.T, db *gorm.DB, identityID, telegramID int64, buttonID *int64, at time.Time) {
	t.Helper()
	ev := &domain.RedemptionEvent{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		TelegramID: telegramID,
		ButtonID:   buttonID,
		ClickedAt:  at,
		Source:     "channel_button",
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("seed click: %v", err)
	}
}

func seedStatsIdentity(t *testing.T, db *gorm.DB, telegramID int64) *domain.Identity {
	t.Helper()
	id := &domain.Identity{TelegramID: telegramID, LastActivity: time.Now().UTC()}
	if err := db.Create(id).Error; err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	return id
}

// ---------- Overview ----------

func TestOverview_Empty(t *testing.T) {
	s := NewStatsService(newStatsSvcDB(t))

	ov, err := s.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Buttons != 0 || ov.Clicks != 0 || ov.Identities != 0 || ov.LastClickAt != nil {
		t.Fatalf("expected zeroed overview, got %+v", ov)
	}
}

func TestOverview_Populated(t *testing.T) {
	db := newStatsSvcDB(t)
	s := NewStatsService(db)

	b := seedStatsButton(t, db, 10, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	u1 := seedStatsIdentity(t, db, 100)
	u2 := seedStatsIdentity(t, db, 101)

	early := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	late := time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC)
	seedStatsClick(t, db, u1.ID, u1.TelegramID, &b.ID, early)
	seedStatsClick(t, db, u2.ID, u2.TelegramID, &b.ID, late)

	ov, err := s.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Buttons != 1 || ov.Clicks != 2 || ov.Identities != 2 {
		t.Fatalf("unexpected totals: %+v", ov)
	}
	if ov.LastClickAt == nil || !ov.LastClickAt.Equal(late) {
		t.Fatalf("last click = %v; want %v", ov.LastClickAt, late)
	}
}

// ---------- GetButton ----------

func TestGetButton_FoundAndNotFound(t *testing.T) {
	db := newStatsSvcDB(t)
	s := NewStatsService(db)

	b := seedStatsButton(t, db, 15, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	got, err := s.GetButton(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetButton: %v", err)
	}
	if got.ID != b.ID || got.MessageID != 15 {
		t.Fatalf("wrong button: %+v", got)
	}

	if _, err := s.GetButton(context.Background(), 99999); !errors.Is(err, ErrButtonNotFound) {
		t.Fatalf("expected ErrButtonNotFound, got %v", err)
	}
}

// ---------- ButtonDetail ----------

func TestButtonDetail_NotFound(t *testing.T) {
	s := NewStatsService(newStatsSvcDB(t))

	if _, err := s.ButtonDetail(context.Background(), 12345); !errors.Is(err, ErrButtonNotFound) {
		t.Fatalf("expected ErrButtonNotFound, got %v", err)
	}
}

func TestButtonDetail_CountsAndDistinctUsers(t *testing.T) {
	db := newStatsSvcDB(t)
	s := NewStatsService(db)

	b := seedStatsButton(t, db, 20, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	u := seedStatsIdentity(t, db, 200)

	at := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	seedStatsClick(t, db, u.ID, u.TelegramID, &b.ID, at)
	seedStatsClick(t, db, u.ID, u.TelegramID, &b.ID, at.Add(time.Hour))

	st, err := s.ButtonDetail(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("ButtonDetail: %v", err)
	}
	if st.Button.ID != b.ID {
		t.Fatalf("wrong button: %+v", st.Button)
	}
	if st.Clicks != 2 || st.UniqueUsers != 1 {
		t.Fatalf("clicks/users = %d/%d; want 2/1", st.Clicks, st.UniqueUsers)
	}
	if st.LastClickAt == nil || !st.LastClickAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("last click = %v", st.LastClickAt)
	}
}

// ---------- ListButtonStats ----------

func TestListButtonStats_NewestFirstWithTotal(t *testing.T) {
	db := newStatsSvcDB(t)
	s := NewStatsService(db)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	seedStatsButton(t, db, 1, base)
	seedStatsButton(t, db, 2, base.Add(time.Hour))
	b3 := seedStatsButton(t, db, 3, base.Add(2*time.Hour))

	items, total, err := s.ListButtonStats(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListButtonStats: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d; want 3", total)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d; want 2", len(items))
	}
	if items[0].Button.ID != b3.ID {
		t.Fatalf("expected newest button first, got %+v", items[0].Button)
	}
}

func TestListButtonStats_EmptyRegistry(t *testing.T) {
	s := NewStatsService(newStatsSvcDB(t))

	items, total, err := s.ListButtonStats(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListButtonStats: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("expected empty result, got %d/%d", len(items), total)
	}
}

// ---------- ListPage ----------

func TestListPage_DefaultsAndPaging(t *testing.T) {
	db := newStatsSvcDB(t)
	s := NewStatsService(db)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		seedStatsButton(t, db, i, base.Add(time.Duration(i)*time.Hour))
	}

	// Invalid page/pageSize fall back to 1/20.
	items, total, err := s.ListPage(context.Background(), 0, -1)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("defaults: got %d items, total %d", len(items), total)
	}

	// Page 2 of size 2 holds the single oldest row.
	items, total, err = s.ListPage(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("ListPage p2: %v", err)
	}
	if total != 3 || len(items) != 1 {
		t.Fatalf("page 2: got %d items, total %d", len(items), total)
	}
	if items[0].MessageID != 1 {
		t.Fatalf("page 2 should hold the oldest button, got %+v", items[0])
	}

	// Beyond the last page comes back empty but with the total intact.
	items, total, err = s.ListPage(context.Background(), 5, 2)
	if err != nil {
		t.Fatalf("ListPage p5: %v", err)
	}
	if total != 3 || len(items) != 0 {
		t.Fatalf("page 5: got %d items, total %d", len(items), total)
	}
}

// ---------- SearchButtons ----------

func TestSearchButtons_MatchesTitleAndCaption(t *testing.T) {
	db := newStatsSvcDB(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	guide := &domain.ButtonDefinition{
		ChannelID: "@promo", MessageID: 1, PostTitle: "Free Marketing Guide",
		ButtonText: "Get the guide", Kind: domain.RewardExternalLink,
		Link: "https://example.com/guide", CreatedAt: base, CreatedBy: 1,
	}
	digest := &domain.ButtonDefinition{
		ChannelID: "@promo", MessageID: 2, PostTitle: "Weekly Digest",
		ButtonText: "Subscribe", Kind: domain.RewardBotAccess,
		Link: "https://t.me/bot?start=channel_button_2", CreatedAt: base.Add(time.Hour), CreatedBy: 1,
	}
	for _, b := range []*domain.ButtonDefinition{guide, digest} {
		if err := db.Create(b).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	s := NewStatsService(db)

	got, err := s.SearchButtons(context.Background(), "marketing guide", 10)
	if err != nil {
		t.Fatalf("SearchButtons: %v", err)
	}
	if len(got) != 1 || got[0].ID != guide.ID {
		t.Fatalf("title query = %+v; want the guide button", got)
	}

	// Caption words match too.
	got, err = s.SearchButtons(context.Background(), "subscribe", 10)
	if err != nil {
		t.Fatalf("SearchButtons: %v", err)
	}
	if len(got) != 1 || got[0].ID != digest.ID {
		t.Fatalf("caption query = %+v; want the digest button", got)
	}
}

func TestSearchButtons_EmptyRegistryAndNoMatch(t *testing.T) {
	db := newStatsSvcDB(t)
	s := NewStatsService(db)

	got, err := s.SearchButtons(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("SearchButtons: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty registry returned %+v", got)
	}

	seedStatsButton(t, db, 1, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	got, err = s.SearchButtons(context.Background(), "zzz qqq", 0)
	if err != nil {
		t.Fatalf("SearchButtons: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("no-overlap query returned %+v", got)
	}
}
