// Package services – PublishService
//
// This file implements the PublishService, which turns an admin's wizard
// input into a live channel post with an inline button and a matching
// registry row. Publishing is two-phase for bot-access buttons: the post
// goes out with a bare placeholder deep link (the channel message id does
// not exist yet), then the link is patched to its message-scoped form in
// the registry and on the published keyboard. External-link buttons carry
// their final URL from the start and skip the patch.
//
// Failures after the post is live never roll it back: the registry write
// surfaces as an error naming the already-published message, and patch
// failures are logged and reported through PublishResult.ButtonPatched.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/repo"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// titleMaxWords caps how many words of the post text feed the derived title.
const titleMaxWords = 8

// titleWordRE extracts word runs (letters, digits, apostrophes) for post
// title derivation.
var titleWordRE = regexp.MustCompile(`[\p{L}\p{N}']+`)

// PublishClient is the Telegram surface PublishService needs.
type PublishClient interface {
	// SendChannelPost publishes text with an inline keyboard to a channel.
	SendChannelPost(ctx context.Context, channel, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)

	// EditMessageReplyMarkup replaces the inline keyboard of a published post.
	EditMessageReplyMarkup(ctx context.Context, channel string, messageID int64, markup *telegram.InlineKeyboardMarkup) error
}

// PublishService publishes reward buttons to channels and registers them.
type PublishService struct {
	// DB is the GORM handle used for the button registry.
	DB *gorm.DB
	// Client talks to the Telegram Bot API.
	Client PublishClient

	// BotUsername builds bot-access deep links ("https://t.me/<name>?start=...").
	BotUsername string
	// TitleMaxLen caps derived post titles by rune length.
	TitleMaxLen int
	// TitleLocale drives title casing of derived post titles.
	TitleLocale language.Tag
	// Log receives post-publish failures that do not abort the flow.
	Log zerolog.Logger
}

// NewPublishService constructs a PublishService with sane title defaults.
func NewPublishService(db *gorm.DB, c PublishClient, botUsername string, log zerolog.Logger) *PublishService {
	return &PublishService{
		DB:          db,
		Client:      c,
		BotUsername: botUsername,
		TitleMaxLen: 100,
		TitleLocale: language.Und,
		Log:         log,
	}
}

// PublishRequest is the validated-at-publish wizard output.
type PublishRequest struct {
	// Channel receives the post; free-form admin input is accepted.
	Channel string
	// PostText is the message body.
	PostText string
	// ButtonText is the inline button caption.
	ButtonText string
	// Kind selects the reward: bot access or external link.
	Kind domain.RewardKind
	// ExternalLink is the reward URL, required for external kind only.
	ExternalLink string
	// CreatedBy is the publishing admin's Telegram id.
	CreatedBy int64
}

// PublishResult reports what a publish produced.
type PublishResult struct {
	// Button is the registered definition, link already patched for
	// bot-access buttons when the patch succeeded.
	Button *domain.ButtonDefinition
	// ButtonPatched reports whether the published keyboard carries the
	// final link. Always true for external buttons; false when a
	// bot-access patch failed and the placeholder was left in place.
	ButtonPatched bool
}

// Publish validates the request, posts to the channel, registers the
// button, and patches bot-access deep links to their message-scoped form.
func (s *PublishService) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "Publish", trace.WithAttributes(
		attribute.String("telegram.channel", req.Channel),
		attribute.String("button.kind", string(req.Kind)),
	))
	defer span.End()

	channel := NormalizeChannel(req.Channel)
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	buttonText := strings.TrimSpace(req.ButtonText)
	if buttonText == "" {
		return nil, ErrEmptyButtonText
	}
	postText := strings.TrimSpace(req.PostText)
	if postText == "" {
		return nil, ErrEmptyPostText
	}
	if !req.Kind.Valid() {
		return nil, ErrInvalidRewardKind
	}

	link := telegram.DeepLink(s.BotUsername, domain.StartTokenPrefix)
	if req.Kind == domain.RewardExternalLink {
		link = strings.TrimSpace(req.ExternalLink)
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			return nil, ErrInvalidLink
		}
	}

	msg, err := s.Client.SendChannelPost(ctx, channel, postText,
		telegram.SingleButton(telegram.InlineKeyboardButton{Text: buttonText, URL: link}))
	if err != nil {
		return nil, err
	}

	btn := &domain.ButtonDefinition{
		ChannelID:  channel,
		MessageID:  msg.MessageID,
		PostTitle:  s.deriveTitle(postText, msg.MessageID),
		ButtonText: buttonText,
		Kind:       req.Kind,
		Link:       link,
		CreatedBy:  req.CreatedBy,
	}
	if err := repo.CreateButton(ctx, s.DB, btn); err != nil {
		// The post is live; name it instead of pretending nothing happened.
		return nil, fmt.Errorf("post %d published to %s but registry write failed: %w", msg.MessageID, channel, err)
	}

	res := &PublishResult{Button: btn, ButtonPatched: true}
	if req.Kind == domain.RewardBotAccess {
		res.ButtonPatched = s.patchDeepLink(ctx, btn)
	}
	return res, nil
}

// patchDeepLink swaps the placeholder deep link for the message-scoped one,
// first in the registry, then on the published keyboard. A failed patch
// leaves the placeholder behind; clicks on it still register as bare-token
// entries, so the post keeps working without per-post attribution.
func (s *PublishService) patchDeepLink(ctx context.Context, btn *domain.ButtonDefinition) bool {
	final := telegram.DeepLink(s.BotUsername, fmt.Sprintf("%s_%d", domain.StartTokenPrefix, btn.MessageID))

	if err := repo.PatchButtonLink(ctx, s.DB, btn.ID, final); err != nil {
		s.Log.Error().Err(err).Int64("button_id", btn.ID).Msg("deep link patch failed; placeholder kept")
		return false
	}
	btn.Link = final

	markup := telegram.SingleButton(telegram.InlineKeyboardButton{Text: btn.ButtonText, URL: final})
	if err := s.Client.EditMessageReplyMarkup(ctx, btn.ChannelID, btn.MessageID, markup); err != nil {
		s.Log.Error().Err(err).Str("channel", btn.ChannelID).Int64("message_id", btn.MessageID).
			Msg("keyboard update failed; placeholder link left on post")
		return false
	}
	return true
}

// TitleLocaleOrDefault returns the configured title locale, defaulting to
// English when unset.
func (s *PublishService) TitleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// deriveTitle builds the registry label for a post: the first words of the
// text, title-cased and clipped by runes. Posts with no extractable words
// get a positional "Post <id>" label.
func (s *PublishService) deriveTitle(postText string, messageID int64) string {
	words := titleWordRE.FindAllString(postText, -1)
	if len(words) == 0 {
		return fmt.Sprintf("Post %d", messageID)
	}
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	caser := cases.Title(s.TitleLocaleOrDefault())
	for i, w := range words {
		words[i] = caser.String(strings.ToLower(w))
	}
	return clipRunes(strings.Join(words, " "), s.TitleMaxLen)
}

// clipRunes truncates s to at most max runes; max <= 0 disables clipping.
func clipRunes(s string, max int) string {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}
