// Package services – StatsService
//
// This file implements the StatsService, the read model over the button
// registry and the click ledger. It backs the admin statistics screen and
// the ops HTTP endpoints: button listings, per-button click counts, and
// bot-wide totals. All queries are straight aggregations; nothing here
// mutates state.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/repo"
	"github.com/tbourn/go-magnet-bot/internal/search"
)

// ButtonStats pairs one registered button with its ledger aggregates.
type ButtonStats struct {
	Button      domain.ButtonDefinition `json:"button"`
	Clicks      int64                   `json:"clicks"`
	UniqueUsers int64                   `json:"unique_users"`
	LastClickAt *time.Time              `json:"last_click_at,omitempty"`
}

// Overview holds bot-wide totals.
type Overview struct {
	Buttons     int64      `json:"buttons"`
	Clicks      int64      `json:"clicks"`
	Identities  int64      `json:"identities"`
	LastClickAt *time.Time `json:"last_click_at,omitempty"`
}

// StatsService aggregates registry and ledger reads.
type StatsService struct {
	// DB is the GORM handle used for all reads.
	DB *gorm.DB
}

// NewStatsService constructs a StatsService.
func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// Overview returns bot-wide totals: registered buttons, ledger size, known
// identities, and the most recent click.
func (s *StatsService) Overview(ctx context.Context) (*Overview, error) {
	buttons, err := repo.CountButtons(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	clicks, last, err := repo.LedgerStats(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	identities, err := repo.CountIdentities(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return &Overview{Buttons: buttons, Clicks: clicks, Identities: identities, LastClickAt: last}, nil
}

// GetButton returns one button definition without touching the ledger.
// Returns ErrButtonNotFound when the id is not registered.
func (s *StatsService) GetButton(ctx context.Context, id int64) (*domain.ButtonDefinition, error) {
	b, err := repo.GetButton(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrButtonNotFound
		}
		return nil, err
	}
	return b, nil
}

// ButtonDetail returns one button with its click statistics.
// Returns ErrButtonNotFound when the id is not registered.
func (s *StatsService) ButtonDetail(ctx context.Context, id int64) (*ButtonStats, error) {
	b, err := repo.GetButton(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrButtonNotFound
		}
		return nil, err
	}
	clicks, users, last, err := repo.ButtonStats(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &ButtonStats{Button: *b, Clicks: clicks, UniqueUsers: users, LastClickAt: last}, nil
}

// ListButtonStats returns the newest limit buttons, each with its click
// statistics, plus the total number of registered buttons. The admin
// statistics screen shows the first page and the remainder as a count.
func (s *StatsService) ListButtonStats(ctx context.Context, limit int) ([]ButtonStats, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	total, err := repo.CountButtons(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ButtonStats{}, 0, nil
	}

	items, err := repo.ListButtonsPage(ctx, s.DB, 0, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ButtonStats, 0, len(items))
	for _, b := range items {
		clicks, users, last, err := repo.ButtonStats(ctx, s.DB, b.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ButtonStats{Button: b, Clicks: clicks, UniqueUsers: users, LastClickAt: last})
	}
	return out, total, nil
}

// ListPage returns a page of button definitions, newest first, with the
// total count. It applies defaults for invalid page/pageSize.
func (s *StatsService) ListPage(ctx context.Context, page, pageSize int) ([]domain.ButtonDefinition, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountButtons(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ButtonDefinition{}, 0, nil
	}

	items, err := repo.ListButtonsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// maxSearchRows bounds how much of the registry a free-text search scans.
// A single bot's registry stays far below this.
const maxSearchRows = 2000

// SearchButtons resolves a free-text query against button titles and
// captions and returns the matching definitions, best match first. The
// index is rebuilt per call from the current registry, so results always
// reflect freshly published buttons.
func (s *StatsService) SearchButtons(ctx context.Context, q string, limit int) ([]domain.ButtonDefinition, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := repo.ListButtonsPage(ctx, s.DB, 0, maxSearchRows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.ButtonDefinition{}, nil
	}

	byID := make(map[int64]domain.ButtonDefinition, len(rows))
	entries := make([]search.Entry, 0, len(rows))
	for _, b := range rows {
		byID[b.ID] = b
		entries = append(entries, search.Entry{ID: b.ID, Text: b.PostTitle + " " + b.ButtonText})
	}

	matches := search.NewIndex(entries).TopK(q, limit)
	out := make([]domain.ButtonDefinition, 0, len(matches))
	for _, m := range matches {
		if b, ok := byID[m.ID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}
