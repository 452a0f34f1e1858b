// Package bot routes Telegram updates into the service layer and renders
// outcomes back to users. This file holds every user-facing text and
// keyboard in one place so the dialog copy can be reviewed (and one day
// localized) without touching flow logic. All texts are HTML parse mode.
package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/services"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// Callback data values routed by the dispatcher.
const (
	cbCheckSubscription = "check_subscription"
	cbAdminPanel        = "admin:back"
	cbAdminAddButton    = "admin:add_button"
	cbAdminStats        = "admin:button_stats"
	cbAdminCommands     = "admin:commands"
	cbKindBot           = "button:type:bot"
	cbKindExternal      = "button:type:external"
)

// End-user texts.
const (
	msgChecking = "Checking your subscription..."

	msgGrantedBotAccess = "✅ <b>Subscription confirmed!</b>\n\n" +
		"Access granted. You can use the bot now."

	msgGrantedExternal = "✅ <b>Subscription confirmed!</b>\n\n" +
		"Your reward is ready, tap the button below."

	msgConfirmedNoReward = "✅ Subscription confirmed. Thank you!"
)

// Admin texts.
const (
	msgAccessDenied = "❌ You are not allowed to do that."

	msgAdminPanel = "🛠 <b>Admin panel</b>\n\nChoose an action:"

	msgAdminCommands = "📝 <b>Admin commands</b>\n\n" +
		"/admin - open this panel\n" +
		"/add_button - publish a channel post with a reward button\n" +
		"/set_channel - change the subscription gate channel\n" +
		"/cancel - abort the current wizard"

	msgAskButtonText = "🔘 <b>New button post</b>\n\n" +
		"Send the button text, for example \"Get the guide\".\n\n" +
		"Use /cancel to abort."

	msgButtonTextEmpty = "❌ The button text cannot be empty. Send it again."

	msgAskKind = "✅ Button text saved.\n\nNow choose what the button hands out:"

	msgAskLink = "✅ Type selected: external link.\n\n" +
		"Send the reward link. It must start with http:// or https://."

	msgLinkInvalid = "❌ That does not look like a link. " +
		"Send a full URL starting with http:// or https://."

	msgAskChannel = "Send the username of the channel to post to.\n\n" +
		"Format: @channel_username or channel_username.\n" +
		"The bot must be an administrator of that channel."

	msgChannelInvalid = "❌ That does not look like a channel username. Send it again."

	msgNotAChannel = "❌ That chat is not a channel. " +
		"Send a channel username like @my_channel."

	msgAskPostText = "Now send the text of the post to publish."

	msgPostTextEmpty = "❌ The post text cannot be empty. Send it again."

	msgWizardExpired = "This dialog has expired. Start again with /add_button."

	msgWizardCancelled = "❌ Cancelled."

	msgStatsFailed = "❌ Failed to load statistics."

	msgStatsEmpty = "📊 <b>Button statistics</b>\n\nNo buttons published yet."
)

// welcomeText greets a plain entry. The first name is user-supplied and
// therefore escaped.
func welcomeText(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("👋 Hi, %s!\n\n"+
		"This bot hands out the rewards attached to our channel posts. "+
		"Tap a button under one of the posts to claim yours.", html.EscapeString(name))
}

// subscriptionRequiredText asks the user to join the gate channel.
func subscriptionRequiredText(channel string) string {
	return fmt.Sprintf("🔒 <b>One step left.</b>\n\n"+
		"Subscribe to %s, then press «✅ I subscribed» below.", html.EscapeString(channel))
}

// notSubscribedText is the repeatable verdict after a failed re-check.
func notSubscribedText(channel string) string {
	return fmt.Sprintf("❌ <b>Subscription not found.</b>\n\n"+
		"1. Subscribe to %s\n"+
		"2. Press «✅ I subscribed» again", html.EscapeString(channel))
}

// channelURL turns "@name" into a t.me link. Private numeric ids have no
// public link; the subscribe button is omitted for them.
func channelURL(channel string) string {
	name := strings.TrimPrefix(channel, "@")
	if name == "" || strings.HasPrefix(name, "-") {
		return ""
	}
	return "https://t.me/" + name
}

// subscribeKeyboard offers the gate channel and the re-check button.
func subscribeKeyboard(channel string) *telegram.InlineKeyboardMarkup {
	rows := [][]telegram.InlineKeyboardButton{}
	if url := channelURL(channel); url != "" {
		rows = append(rows, []telegram.InlineKeyboardButton{{Text: "📢 Subscribe", URL: url}})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{{Text: "✅ I subscribed", CallbackData: cbCheckSubscription}})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// rewardKeyboard carries the released external reward link.
func rewardKeyboard(link string) *telegram.InlineKeyboardMarkup {
	return telegram.SingleButton(telegram.InlineKeyboardButton{Text: "🎁 Get access", URL: link})
}

// adminPanelKeyboard is the /admin menu.
func adminPanelKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "➕ New button post", CallbackData: cbAdminAddButton}},
		{{Text: "📊 Button stats", CallbackData: cbAdminStats}},
		{{Text: "📝 Commands", CallbackData: cbAdminCommands}},
	}}
}

// backKeyboard returns to the admin panel.
func backKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.SingleButton(telegram.InlineKeyboardButton{Text: "◀️ Back", CallbackData: cbAdminPanel})
}

// kindKeyboard picks the reward kind during the publish wizard.
func kindKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "🤖 Bot access", CallbackData: cbKindBot}},
		{{Text: "🔗 External link", CallbackData: cbKindExternal}},
	}}
}

// channelChosenText confirms the channel and asks for the post body.
func channelChosenText(channel string) string {
	return fmt.Sprintf("✅ Channel selected: %s\n\n%s", html.EscapeString(channel), msgAskPostText)
}

// channelCheckFailedText explains why a channel could not be validated.
func channelCheckFailedText(err error) string {
	reason := "the channel was not found"
	switch telegram.KindOf(err) {
	case telegram.KindForbidden:
		reason = "the bot has no access to it"
	case telegram.KindUnavailable:
		reason = "Telegram did not respond, try again"
	}
	return fmt.Sprintf("❌ Could not check that channel: %s.\n\n"+
		"Make sure the bot is an administrator and the username is correct.", reason)
}

// setChannelPrompt shows the current gate and asks for a new one.
func setChannelPrompt(current string) string {
	return fmt.Sprintf("⚙️ <b>Subscription gate channel</b>\n\n"+
		"Current channel: %s\n\n"+
		"Send the new channel username (@channel_username or channel_username). "+
		"The bot must be an administrator there.\n\n"+
		"Use /cancel to abort.", html.EscapeString(current))
}

// setChannelDoneText confirms the stored gate channel.
func setChannelDoneText(channel string) string {
	return fmt.Sprintf("✅ Subscription gate channel set to %s.", html.EscapeString(channel))
}

// publishedSummary reports a successful publish back to the admin. All
// stored fields are admin input and escaped for HTML mode.
func publishedSummary(res *services.PublishResult) string {
	b := res.Button
	kindLabel := "🔗 External link"
	if b.Kind == domain.RewardBotAccess {
		kindLabel = "🤖 Bot access"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ <b>Post published!</b>\n\n")
	fmt.Fprintf(&sb, "📊 Post id: <code>%d</code>\n", b.MessageID)
	fmt.Fprintf(&sb, "📝 Title: %s\n", html.EscapeString(b.PostTitle))
	fmt.Fprintf(&sb, "🔘 Button: %s\n", html.EscapeString(b.ButtonText))
	fmt.Fprintf(&sb, "%s\n", kindLabel)
	fmt.Fprintf(&sb, "🔗 Link: <code>%s</code>", html.EscapeString(b.Link))
	if !res.ButtonPatched {
		sb.WriteString("\n\n⚠️ The button link on the post could not be updated, " +
			"clicks will not be attributed to this post.")
	}
	return sb.String()
}

// publishFailedText maps publish errors to an admin-facing explanation.
func publishFailedText(err error) string {
	switch telegram.KindOf(err) {
	case telegram.KindForbidden, telegram.KindNotFound:
		return "❌ <b>Could not publish the post.</b>\n\n" +
			"Make sure the bot is an administrator of the channel and may post messages."
	case telegram.KindUnavailable:
		return "❌ Telegram is not responding. Try again in a minute."
	}
	return fmt.Sprintf("❌ Could not publish the post: %s", html.EscapeString(err.Error()))
}

// statsText renders the per-button statistics screen.
func statsText(items []services.ButtonStats, total int64) string {
	if len(items) == 0 {
		return msgStatsEmpty
	}
	var sb strings.Builder
	sb.WriteString("📊 <b>Button statistics</b>\n\n")
	for _, st := range items {
		kindLabel := "🔗 external"
		if st.Button.Kind == domain.RewardBotAccess {
			kindLabel = "🤖 bot"
		}
		fmt.Fprintf(&sb, "<b>🔘 %s</b>\n", html.EscapeString(clipText(st.Button.ButtonText, 30)))
		fmt.Fprintf(&sb, "📝 %s\n", html.EscapeString(clipText(st.Button.PostTitle, 40)))
		fmt.Fprintf(&sb, "%s · 👆 %d clicks · 👥 %d users\n\n", kindLabel, st.Clicks, st.UniqueUsers)
	}
	if rest := total - int64(len(items)); rest > 0 {
		fmt.Fprintf(&sb, "... and %d more", rest)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// clipText shortens s to max runes with an ellipsis.
func clipText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
