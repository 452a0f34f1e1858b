// Package services – RedemptionService
//
// This file implements the RedemptionService, the decision core of the
// reward flow. Every /start entry and every "I subscribed" confirmation
// funnels through here: the service registers the identity, appends the
// click to the ledger, resolves the pressed button, consults the
// subscription gate, and reduces all of it to a single Outcome the bot
// layer renders verbatim.
//
// The service is deliberately side-effect-light toward the caller: it
// never talks to Telegram and never touches the session store. Staged
// rewards travel in and out as values; the caller owns their storage and
// expiry. Persistence failures inside the flow are logged and degrade to
// the plain-welcome outcome rather than surfacing errors to end users.
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
	"github.com/tbourn/go-magnet-bot/internal/session"
)

// OutcomeKind enumerates the terminal results of a redemption step.
type OutcomeKind string

const (
	// OutcomePlainWelcome greets a user whose entry carried no redeemable
	// button context.
	OutcomePlainWelcome OutcomeKind = "plain_welcome"
	// OutcomeSubscriptionRequired asks the user to join the gate channel
	// before the staged reward is released.
	OutcomeSubscriptionRequired OutcomeKind = "subscription_required"
	// OutcomeRewardGranted releases the reward link.
	OutcomeRewardGranted OutcomeKind = "reward_granted"
	// OutcomeConfirmedNoReward acknowledges a subscription confirmation
	// that has no staged reward behind it.
	OutcomeConfirmedNoReward OutcomeKind = "subscription_confirmed_no_reward"
)

// Outcome is the coordinator's verdict for one redemption step. Channel is
// set for OutcomeSubscriptionRequired; Link and RewardKind are set for
// OutcomeRewardGranted.
type Outcome struct {
	Kind       OutcomeKind
	Channel    string
	Link       string
	RewardKind domain.RewardKind
}

// EntryEvent is one observed /start, carrying the sender's current profile
// and the raw deep-link payload (may be empty).
type EntryEvent struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Payload    string
}

// SubscriptionOracle is the gate surface RedemptionService depends on.
// *SubscriptionService satisfies it.
type SubscriptionOracle interface {
	// GateChannel resolves the channel redemption is currently gated on.
	GateChannel(ctx context.Context) string
	// IsSubscribed reports channel membership, false on any failure.
	IsSubscribed(ctx context.Context, channel string, telegramID int64) bool
}

// RedemptionService decides what one entry or confirmation results in.
type RedemptionService struct {
	// DB is the GORM handle used for identities, buttons, and the ledger.
	DB *gorm.DB
	// Subs answers the subscription question.
	Subs SubscriptionOracle
	// Log receives the swallowed persistence failures.
	Log zerolog.Logger
}

// NewRedemptionService constructs a RedemptionService.
func NewRedemptionService(db *gorm.DB, subs SubscriptionOracle, log zerolog.Logger) *RedemptionService {
	return &RedemptionService{DB: db, Subs: subs, Log: log}
}

// Start processes one /start entry and returns the outcome plus the staged
// reward the caller should keep for this user afterwards.
//
// The returned reward pointer is the contract with the session layer: nil
// means drop any staged reward (it was granted or never existed for this
// flow), a non-nil value replaces whatever was staged before. An entry
// that does not touch the reward flow returns the incoming value
// unchanged.
//
// The ledger append is unconditional for recognized tokens and best
// effort: its failure is logged and the decision proceeds without it.
func (s *RedemptionService) Start(ctx context.Context, ev EntryEvent, staged *session.StagedReward) (Outcome, *session.StagedReward) {
	tr := otel.Tracer("services/RedemptionService")
	ctx, span := tr.Start(ctx, "Start", trace.WithAttributes(
		attribute.Int64("telegram.user_id", ev.TelegramID),
		attribute.String("entry.payload", ev.Payload),
	))
	defer span.End()

	identity, err := repo.UpsertIdentity(ctx, s.DB, ev.TelegramID, ev.Username, ev.FirstName, ev.LastName)
	if err != nil {
		s.Log.Error().Err(err).Int64("telegram_id", ev.TelegramID).Msg("identity upsert failed")
	}

	tok := domain.ParseStartToken(strings.TrimSpace(ev.Payload))
	if !tok.Known {
		return Outcome{Kind: OutcomePlainWelcome}, staged
	}

	var (
		buttonID *int64
		postID   *int64
		reward   *session.StagedReward
	)
	if tok.HasPost() {
		pid := tok.PostID
		postID = &pid

		b, err := repo.GetButtonByMessageID(ctx, s.DB, tok.PostID)
		switch {
		case err == nil:
			buttonID = &b.ID
			reward = &session.StagedReward{Link: b.Link, Kind: b.Kind}
		case errors.Is(err, repo.ErrNotFound):
			// Legacy or deleted reference; the click is still recorded.
		default:
			s.Log.Error().Err(err).Int64("post_id", tok.PostID).Msg("button lookup failed")
		}
	}

	if identity != nil {
		if _, err := repo.InsertRedemptionEvent(ctx, s.DB, identity.ID, ev.TelegramID, buttonID, tok.Raw, postID); err != nil {
			s.Log.Error().Err(err).Int64("telegram_id", ev.TelegramID).Msg("click ledger append failed")
		}
	}

	if reward == nil {
		return Outcome{Kind: OutcomePlainWelcome}, staged
	}

	channel := s.Subs.GateChannel(ctx)
	if s.Subs.IsSubscribed(ctx, channel, ev.TelegramID) {
		return Outcome{Kind: OutcomeRewardGranted, Link: reward.Link, RewardKind: reward.Kind}, nil
	}
	return Outcome{Kind: OutcomeSubscriptionRequired, Channel: channel}, reward
}

// ConfirmSubscription re-checks the gate after the user pressed
// "I subscribed". It is safe to call any number of times: failed checks
// leave the staged reward in place so the user can subscribe and press
// again.
func (s *RedemptionService) ConfirmSubscription(ctx context.Context, telegramID int64, staged *session.StagedReward) (Outcome, *session.StagedReward) {
	tr := otel.Tracer("services/RedemptionService")
	ctx, span := tr.Start(ctx, "ConfirmSubscription", trace.WithAttributes(
		attribute.Int64("telegram.user_id", telegramID),
		attribute.Bool("reward.staged", staged != nil),
	))
	defer span.End()

	if err := repo.TouchIdentity(ctx, s.DB, telegramID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.Log.Error().Err(err).Int64("telegram_id", telegramID).Msg("identity touch failed")
	}

	channel := s.Subs.GateChannel(ctx)
	if !s.Subs.IsSubscribed(ctx, channel, telegramID) {
		return Outcome{Kind: OutcomeSubscriptionRequired, Channel: channel}, staged
	}
	if staged != nil {
		return Outcome{Kind: OutcomeRewardGranted, Link: staged.Link, RewardKind: staged.Kind}, nil
	}
	return Outcome{Kind: OutcomeConfirmedNoReward}, nil
}
