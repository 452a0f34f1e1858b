package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-magnet-bot/internal/domain"
)

func newSettingsDB(t *testing.T, migrate ...any) *gorm.DB {
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

func TestGetSetting_NotFound(t *testing.T) {
	db := newSettingsDB(t, &domain.Setting{})
	if _, err := GetSetting(context.Background(), db, domain.SettingSubscriptionChannel); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unwritten key, got %v", err)
	}
}

func TestUpsertSetting_Error_NoTable(t *testing.T) {
	db := newSettingsDB(t /* no migrations */)
	s, err := UpsertSetting(context.Background(), db, "k", "v", 1)
	if err == nil || s != nil {
		t.Fatalf("expected error without table, got s=%v err=%v", s, err)
	}
}

func TestUpsertSetting_CreateThenRewrite(t *testing.T) {
	db := newSettingsDB(t, &domain.Setting{})

	start := time.Now().UTC().Add(-time.Minute)
	s, err := UpsertSetting(context.Background(), db, domain.SettingSubscriptionChannel, "@first", 42)
	if err != nil {
		t.Fatalf("UpsertSetting create: %v", err)
	}
	if s.ID == 0 || s.Value != "@first" || s.UpdatedBy != 42 {
		t.Fatalf("unexpected Setting fields: %+v", s)
	}
	if s.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset: %v", s.CreatedAt)
	}
	created := s.CreatedAt

	// Rewrite by a different admin.
	s2, err := UpsertSetting(context.Background(), db, domain.SettingSubscriptionChannel, "@second", 99)
	if err != nil {
		t.Fatalf("UpsertSetting rewrite: %v", err)
	}
	if s2.ID != s.ID {
		t.Fatalf("rewrite created a second row: %+v", s2)
	}
	if s2.Value != "@second" || s2.UpdatedBy != 99 {
		t.Fatalf("rewrite not applied: %+v", s2)
	}

	// CreatedAt stays put, only one row exists, and reads see the new value.
	got, err := GetSetting(context.Background(), db, domain.SettingSubscriptionChannel)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got.Value != "@second" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected stored setting: %+v", got)
	}
	var total int64
	if err := db.Model(&domain.Setting{}).Count(&total).Error; err != nil || total != 1 {
		t.Fatalf("expected 1 row, got %d (err=%v)", total, err)
	}
}

func TestUpsertSetting_DistinctKeysCoexist(t *testing.T) {
	db := newSettingsDB(t, &domain.Setting{})

	if _, err := UpsertSetting(context.Background(), db, "a", "1", 1); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if _, err := UpsertSetting(context.Background(), db, "b", "2", 1); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	got, err := GetSetting(context.Background(), db, "a")
	if err != nil || got.Value != "1" {
		t.Fatalf("key a: got %+v err=%v", got, err)
	}
	got, err = GetSetting(context.Background(), db, "b")
	if err != nil || got.Value != "2" {
		t.Fatalf("key b: got %+v err=%v", got, err)
	}
}
