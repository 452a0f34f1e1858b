// Package services – SubscriptionService
//
// This file implements the SubscriptionService, the single authority on
// whether a Telegram user counts as subscribed to the gate channel. The
// answer is a plain bool: every failure mode (API outage, bot lacking
// admin rights, unknown channel) is logged and reported as "not
// subscribed", so a reward is never granted on an error path.
//
// The gate channel itself is resolved per call: an admin-stored settings
// override wins, the configured default applies otherwise.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/repo"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// MembershipClient is the Telegram surface SubscriptionService needs.
type MembershipClient interface {
	// GetChatMember returns the user's membership record in the channel.
	GetChatMember(ctx context.Context, channel string, userID int64) (*telegram.ChatMember, error)
}

// SubscriptionService answers subscription questions for the redemption
// flow and manages the gate channel setting.
type SubscriptionService struct {
	// DB is the GORM handle used for the settings lookup.
	DB *gorm.DB
	// Client talks to the Telegram Bot API.
	Client MembershipClient

	// DefaultChannel is the gate channel used when no settings override
	// exists. Normalized at construction.
	DefaultChannel string
	// Log receives the swallowed check failures.
	Log zerolog.Logger
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, c MembershipClient, defaultChannel string, log zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		DB:             db,
		Client:         c,
		DefaultChannel: NormalizeChannel(defaultChannel),
		Log:            log,
	}
}

// GateChannel resolves the channel redemption is gated on: the stored
// override when present and non-empty, the configured default otherwise.
// Lookup failures fall back to the default so redemption keeps working
// with a degraded settings table.
func (s *SubscriptionService) GateChannel(ctx context.Context) string {
	st, err := repo.GetSetting(ctx, s.DB, domain.SettingSubscriptionChannel)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.Log.Error().Err(err).Msg("gate channel lookup failed; using default")
		}
		return s.DefaultChannel
	}
	if ch := NormalizeChannel(st.Value); ch != "" {
		return ch
	}
	return s.DefaultChannel
}

// SetGateChannel stores channel as the new gate and returns its
// normalized form. Empty input is rejected with ErrEmptyChannel.
func (s *SubscriptionService) SetGateChannel(ctx context.Context, channel string, adminID int64) (string, error) {
	ch := NormalizeChannel(channel)
	if ch == "" {
		return "", ErrEmptyChannel
	}
	if _, err := repo.UpsertSetting(ctx, s.DB, domain.SettingSubscriptionChannel, ch, adminID); err != nil {
		return "", err
	}
	return ch, nil
}

// IsSubscribed reports whether the user currently belongs to the channel
// (member, administrator, or creator). Any check failure is logged and
// returned as false. The inaccessible-member-list case gets its own log
// line because the fix is operational: the bot must be a channel admin.
func (s *SubscriptionService) IsSubscribed(ctx context.Context, channel string, telegramID int64) bool {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "IsSubscribed", trace.WithAttributes(
		attribute.String("telegram.channel", channel),
		attribute.Int64("telegram.user_id", telegramID),
	))
	defer span.End()

	if channel == "" {
		s.Log.Warn().Int64("telegram_id", telegramID).Msg("no gate channel configured; treating user as not subscribed")
		return false
	}

	m, err := s.Client.GetChatMember(ctx, channel, telegramID)
	if err != nil {
		switch telegram.KindOf(err) {
		case telegram.KindMemberListInaccessible:
			s.Log.Warn().Err(err).Str("channel", channel).
				Msg("channel member list is inaccessible; add the bot as channel admin")
		default:
			s.Log.Error().Err(err).Str("channel", channel).Int64("telegram_id", telegramID).
				Msg("subscription check failed")
		}
		return false
	}

	switch m.Status {
	case telegram.StatusCreator, telegram.StatusAdministrator, telegram.StatusMember:
		return true
	}
	return false
}

// NormalizeChannel maps free-form admin input to a form the Bot API
// accepts: public usernames get a leading "@", numeric chat ids
// (starting with "-") pass through unchanged.
func NormalizeChannel(raw string) string {
	ch := strings.TrimSpace(raw)
	if ch == "" || ch == "@" {
		return ""
	}
	if strings.HasPrefix(ch, "@") || strings.HasPrefix(ch, "-") {
		return ch
	}
	return "@" + ch
}
