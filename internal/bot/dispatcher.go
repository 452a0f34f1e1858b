// Package bot – Dispatcher
//
// The Dispatcher is the single entry point for Telegram updates, whether
// they arrive by long polling or webhook. It deduplicates deliveries by
// update id, routes messages and callback presses to the service layer,
// keeps the staged-reward session in sync with coordinator verdicts, and
// drives the admin wizards. It renders with the texts and keyboards from
// messages.go and never composes user copy inline.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/repo"
	"github.com/tbourn/go-magnet-bot/internal/services"
	"github.com/tbourn/go-magnet-bot/internal/session"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// defaultDedupTTL is how long processed update ids are remembered. Telegram
// retries webhook deliveries for at most a day; 48h leaves slack.
const defaultDedupTTL = 48 * time.Hour

// dedupPurgeEvery is how many deduped updates pass between opportunistic
// purges of expired dedup rows.
const dedupPurgeEvery = 1000

// ClientAPI is the Telegram surface the dispatcher talks to directly.
// Publishing goes through PublishService and has its own client contract.
type ClientAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	GetChat(ctx context.Context, channel string) (*telegram.Chat, error)
}

// Dispatcher routes one update at a time. Safe for concurrent use.
type Dispatcher struct {
	// DB is the GORM handle used for delivery dedup.
	DB *gorm.DB
	// Client talks to the Telegram Bot API.
	Client ClientAPI

	// Redeem decides entry and confirmation outcomes.
	Redeem *services.RedemptionService
	// Subs manages the gate channel setting.
	Subs *services.SubscriptionService
	// Publish runs the two-phase channel publish.
	Publish *services.PublishService
	// Stats backs the admin statistics screen.
	Stats *services.StatsService

	// Sessions stores staged rewards between an entry and its confirmation.
	Sessions session.Store
	// IsAdmin gates the admin commands and callbacks.
	IsAdmin func(int64) bool
	// DedupTTL caps how long processed update ids are remembered.
	DedupTTL time.Duration
	// Log receives routing and delivery failures.
	Log zerolog.Logger

	wizards *wizardStore
	purgeN  atomic.Uint64
}

// NewDispatcher wires a Dispatcher. isAdmin may be nil when no admins are
// configured; every admin surface then denies.
func NewDispatcher(
	db *gorm.DB,
	client ClientAPI,
	redeem *services.RedemptionService,
	subs *services.SubscriptionService,
	publish *services.PublishService,
	stats *services.StatsService,
	sessions session.Store,
	isAdmin func(int64) bool,
	log zerolog.Logger,
) *Dispatcher {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Dispatcher{
		DB:       db,
		Client:   client,
		Redeem:   redeem,
		Subs:     subs,
		Publish:  publish,
		Stats:    stats,
		Sessions: sessions,
		IsAdmin:  isAdmin,
		DedupTTL: defaultDedupTTL,
		Log:      log,
		wizards:  newWizardStore(),
	}
}

// HandleUpdate processes one update end to end. It never returns an error:
// every failure is logged and answered (or dropped) here, because Telegram
// only cares that the delivery was accepted.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u *telegram.Update) {
	if u == nil {
		return
	}
	if u.UpdateID > 0 {
		if _, err := repo.MarkUpdateProcessed(ctx, d.DB, u.UpdateID, d.DedupTTL); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				botUpdatesDuplicate.Inc()
				d.Log.Debug().Int64("update_id", u.UpdateID).Msg("duplicate update skipped")
				return
			}
			// Dedup bookkeeping must not block processing.
			d.Log.Warn().Err(err).Int64("update_id", u.UpdateID).Msg("update dedup write failed")
		}
		// Opportunistic purge keeps the dedup table bounded.
		if d.purgeN.Add(1)%dedupPurgeEvery == 0 {
			if _, err := repo.PurgeExpiredUpdates(ctx, d.DB, time.Now().UTC()); err != nil {
				d.Log.Warn().Err(err).Msg("dedup purge failed")
			}
		}
	}

	switch {
	case u.CallbackQuery != nil:
		botUpdates.WithLabelValues("callback").Inc()
		d.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		botUpdates.WithLabelValues("message").Inc()
		d.handleMessage(ctx, u.Message)
	default:
		botUpdates.WithLabelValues("other").Inc()
	}
}

// ----- messages -----

func (d *Dispatcher) handleMessage(ctx context.Context, m *telegram.Message) {
	if m.From == nil {
		return
	}
	userID := m.From.ID
	cmd, arg := splitCommand(strings.TrimSpace(m.Text))

	switch cmd {
	case "/start":
		d.handleStart(ctx, m, arg)
	case "/admin":
		if !d.requireAdmin(ctx, m) {
			return
		}
		d.send(ctx, m.Chat.ID, msgAdminPanel, adminPanelKeyboard())
	case "/add_button":
		if !d.requireAdmin(ctx, m) {
			return
		}
		d.wizards.set(userID, &wizardState{
			Step:  stepButtonText,
			Draft: services.PublishRequest{CreatedBy: userID},
		})
		d.send(ctx, m.Chat.ID, msgAskButtonText, nil)
	case "/set_channel":
		if !d.requireAdmin(ctx, m) {
			return
		}
		d.wizards.set(userID, &wizardState{Step: stepGateChannel})
		d.send(ctx, m.Chat.ID, setChannelPrompt(d.Subs.GateChannel(ctx)), nil)
	case "/cancel":
		if d.wizards.get(userID) != nil {
			d.wizards.clear(userID)
			d.send(ctx, m.Chat.ID, msgWizardCancelled, nil)
		}
	default:
		if st := d.wizards.get(userID); st != nil && d.IsAdmin(userID) {
			d.handleWizardInput(ctx, m, st)
			return
		}
		// Free text outside a wizard is ignored.
		d.Log.Debug().Int64("telegram_id", userID).Msg("unhandled message")
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, m *telegram.Message, payload string) {
	from := m.From

	staged, err := d.Sessions.Get(ctx, from.ID)
	if err != nil {
		d.Log.Error().Err(err).Int64("telegram_id", from.ID).Msg("session read failed")
	}

	out, next := d.Redeem.Start(ctx, services.EntryEvent{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Payload:    payload,
	}, staged)
	d.syncStage(ctx, from.ID, staged, next)
	botOutcomes.WithLabelValues(string(out.Kind)).Inc()

	text, markup := d.renderOutcome(out, from.FirstName, false)
	d.send(ctx, m.Chat.ID, text, markup)
}

// ----- callbacks -----

func (d *Dispatcher) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	switch {
	case q.Data == cbCheckSubscription:
		d.handleCheckSubscription(ctx, q)
	case strings.HasPrefix(q.Data, "admin:"), strings.HasPrefix(q.Data, "button:type:"):
		d.handleAdminCallback(ctx, q)
	default:
		d.answer(ctx, q.ID, "")
		d.Log.Debug().Str("data", q.Data).Msg("unhandled callback")
	}
}

func (d *Dispatcher) handleCheckSubscription(ctx context.Context, q *telegram.CallbackQuery) {
	d.answer(ctx, q.ID, msgChecking)
	userID := q.From.ID

	staged, err := d.Sessions.Get(ctx, userID)
	if err != nil {
		d.Log.Error().Err(err).Int64("telegram_id", userID).Msg("session read failed")
	}

	out, next := d.Redeem.ConfirmSubscription(ctx, userID, staged)
	d.syncStage(ctx, userID, staged, next)
	botOutcomes.WithLabelValues(string(out.Kind)).Inc()

	text, markup := d.renderOutcome(out, q.From.FirstName, true)
	d.respond(ctx, q, text, markup)
}

func (d *Dispatcher) handleAdminCallback(ctx context.Context, q *telegram.CallbackQuery) {
	d.answer(ctx, q.ID, "")
	if !d.IsAdmin(q.From.ID) {
		d.respond(ctx, q, msgAccessDenied, nil)
		return
	}

	switch q.Data {
	case cbAdminPanel:
		d.respond(ctx, q, msgAdminPanel, adminPanelKeyboard())
	case cbAdminCommands:
		d.respond(ctx, q, msgAdminCommands, backKeyboard())
	case cbAdminStats:
		items, total, err := d.Stats.ListButtonStats(ctx, 10)
		if err != nil {
			d.Log.Error().Err(err).Msg("button stats failed")
			d.respond(ctx, q, msgStatsFailed, backKeyboard())
			return
		}
		d.respond(ctx, q, statsText(items, total), backKeyboard())
	case cbAdminAddButton:
		d.wizards.set(q.From.ID, &wizardState{
			Step:  stepButtonText,
			Draft: services.PublishRequest{CreatedBy: q.From.ID},
		})
		d.respond(ctx, q, msgAskButtonText, nil)
	case cbKindBot, cbKindExternal:
		d.handleKindSelection(ctx, q)
	default:
		d.Log.Debug().Str("data", q.Data).Msg("unhandled admin callback")
	}
}

func (d *Dispatcher) handleKindSelection(ctx context.Context, q *telegram.CallbackQuery) {
	st := d.wizards.get(q.From.ID)
	if st == nil || st.Step != stepKind {
		d.respond(ctx, q, msgWizardExpired, nil)
		return
	}
	if q.Data == cbKindBot {
		st.Draft.Kind = domain.RewardBotAccess
		st.Step = stepChannel
		d.wizards.set(q.From.ID, st)
		d.respond(ctx, q, "✅ Type selected: bot access.\n\n"+msgAskChannel, nil)
		return
	}
	st.Draft.Kind = domain.RewardExternalLink
	st.Step = stepExternalLink
	d.wizards.set(q.From.ID, st)
	d.respond(ctx, q, msgAskLink, nil)
}

// ----- wizard input -----

func (d *Dispatcher) handleWizardInput(ctx context.Context, m *telegram.Message, st *wizardState) {
	userID := m.From.ID
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)

	switch st.Step {
	case stepButtonText:
		if text == "" {
			d.send(ctx, chatID, msgButtonTextEmpty, nil)
			return
		}
		st.Draft.ButtonText = text
		st.Step = stepKind
		d.wizards.set(userID, st)
		d.send(ctx, chatID, msgAskKind, kindKeyboard())

	case stepExternalLink:
		if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
			d.send(ctx, chatID, msgLinkInvalid, nil)
			return
		}
		st.Draft.ExternalLink = text
		st.Step = stepChannel
		d.wizards.set(userID, st)
		d.send(ctx, chatID, "✅ Link saved.\n\n"+msgAskChannel, nil)

	case stepChannel:
		channel, ok := d.checkChannel(ctx, chatID, text)
		if !ok {
			return
		}
		st.Draft.Channel = channel
		st.Step = stepPostText
		d.wizards.set(userID, st)
		d.send(ctx, chatID, channelChosenText(channel), nil)

	case stepPostText:
		if text == "" {
			d.send(ctx, chatID, msgPostTextEmpty, nil)
			return
		}
		st.Draft.PostText = text
		d.wizards.clear(userID)
		d.finishPublish(ctx, chatID, st.Draft)

	case stepGateChannel:
		channel, ok := d.checkChannel(ctx, chatID, text)
		if !ok {
			return
		}
		saved, err := d.Subs.SetGateChannel(ctx, channel, userID)
		if err != nil {
			d.Log.Error().Err(err).Str("channel", channel).Msg("gate channel update failed")
			d.send(ctx, chatID, "❌ Could not store the channel. Try again.", nil)
			return
		}
		d.wizards.clear(userID)
		d.send(ctx, chatID, setChannelDoneText(saved), nil)

	default:
		d.wizards.clear(userID)
		d.send(ctx, chatID, msgWizardExpired, nil)
	}
}

// checkChannel normalizes admin channel input and verifies the bot can see
// it and that it really is a channel. Failures keep the wizard in place and
// tell the admin why.
func (d *Dispatcher) checkChannel(ctx context.Context, chatID int64, input string) (string, bool) {
	channel := services.NormalizeChannel(input)
	if channel == "" {
		d.send(ctx, chatID, msgChannelInvalid, nil)
		return "", false
	}
	chat, err := d.Client.GetChat(ctx, channel)
	if err != nil {
		d.Log.Warn().Err(err).Str("channel", channel).Msg("channel validation failed")
		d.send(ctx, chatID, channelCheckFailedText(err), nil)
		return "", false
	}
	if chat.Type != "channel" && chat.Type != "supergroup" {
		d.send(ctx, chatID, msgNotAChannel, nil)
		return "", false
	}
	return channel, true
}

func (d *Dispatcher) finishPublish(ctx context.Context, chatID int64, draft services.PublishRequest) {
	res, err := d.Publish.Publish(ctx, draft)
	if err != nil {
		botPublishes.WithLabelValues(string(draft.Kind), "error").Inc()
		d.Log.Error().Err(err).Str("channel", draft.Channel).Msg("publish failed")
		d.send(ctx, chatID, publishFailedText(err), nil)
		return
	}
	botPublishes.WithLabelValues(string(draft.Kind), "ok").Inc()
	d.send(ctx, chatID, publishedSummary(res), nil)
}

// ----- shared helpers -----

// renderOutcome maps a coordinator verdict to text and keyboard. The
// confirming variant differs only for the repeated not-subscribed message.
func (d *Dispatcher) renderOutcome(out services.Outcome, firstName string, confirming bool) (string, *telegram.InlineKeyboardMarkup) {
	switch out.Kind {
	case services.OutcomeSubscriptionRequired:
		if confirming {
			return notSubscribedText(out.Channel), subscribeKeyboard(out.Channel)
		}
		return subscriptionRequiredText(out.Channel), subscribeKeyboard(out.Channel)
	case services.OutcomeRewardGranted:
		if out.RewardKind == domain.RewardExternalLink {
			return msgGrantedExternal, rewardKeyboard(out.Link)
		}
		return msgGrantedBotAccess, nil
	case services.OutcomeConfirmedNoReward:
		return msgConfirmedNoReward, nil
	default:
		return welcomeText(firstName), nil
	}
}

// syncStage reconciles the session store with the coordinator's returned
// stake: nil clears a previously staged reward, a new value replaces it,
// the same pointer is a no-op.
func (d *Dispatcher) syncStage(ctx context.Context, userID int64, prev, next *session.StagedReward) {
	switch {
	case next == nil && prev != nil:
		if err := d.Sessions.Clear(ctx, userID); err != nil {
			d.Log.Error().Err(err).Int64("telegram_id", userID).Msg("session clear failed")
		}
	case next != nil && next != prev:
		if err := d.Sessions.Put(ctx, userID, *next); err != nil {
			d.Log.Error().Err(err).Int64("telegram_id", userID).Msg("session write failed")
		}
	}
}

// requireAdmin denies non-admins with a visible message. Commands are
// explicit requests, so silence would read as breakage.
func (d *Dispatcher) requireAdmin(ctx context.Context, m *telegram.Message) bool {
	if d.IsAdmin(m.From.ID) {
		return true
	}
	d.send(ctx, m.Chat.ID, msgAccessDenied, nil)
	return false
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) {
	if _, err := d.Client.SendMessage(ctx, chatID, text, markup); err != nil {
		d.Log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

// respond rewrites the message the callback came from, falling back to a
// fresh message when the edit is rejected. "Not modified" means the screen
// is already correct and is ignored.
func (d *Dispatcher) respond(ctx context.Context, q *telegram.CallbackQuery, text string, markup *telegram.InlineKeyboardMarkup) {
	if q.Message != nil {
		err := d.Client.EditMessageText(ctx, q.Message.Chat.ID, q.Message.MessageID, text, markup)
		if err == nil || telegram.KindOf(err) == telegram.KindNotModified {
			return
		}
		d.Log.Debug().Err(err).Msg("edit failed; sending instead")
		d.send(ctx, q.Message.Chat.ID, text, markup)
		return
	}
	d.send(ctx, q.From.ID, text, markup)
}

func (d *Dispatcher) answer(ctx context.Context, callbackID, text string) {
	if err := d.Client.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		d.Log.Debug().Err(err).Msg("callback answer failed")
	}
}

// splitCommand separates "/cmd@BotName arg..." into the bare command and
// its argument string. Non-commands come back with an empty command.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, arg, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, strings.TrimSpace(arg)
}
