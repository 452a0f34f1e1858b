package bot

import (
	"strings"
	"testing"

	"github.com/tbourn/go-magnet-bot/internal/domain"
	"github.com/tbourn/go-magnet-bot/internal/services"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// ---------- welcome ----------

func TestWelcomeText(t *testing.T) {
	if got := welcomeText(""); !strings.Contains(got, "Hi, there!") {
		t.Errorf("empty name fallback missing: %q", got)
	}
	if got := welcomeText("  "); !strings.Contains(got, "Hi, there!") {
		t.Errorf("blank name fallback missing: %q", got)
	}
	got := welcomeText("<b>Eve</b>")
	if strings.Contains(got, "<b>Eve") {
		t.Errorf("name was not escaped: %q", got)
	}
	if !strings.Contains(got, "&lt;b&gt;Eve&lt;/b&gt;") {
		t.Errorf("escaped name missing: %q", got)
	}
}

// ---------- channel link ----------

func TestChannelURL(t *testing.T) {
	cases := map[string]string{
		"@promo":         "https://t.me/promo",
		"@my_channel":    "https://t.me/my_channel",
		"-1001234567890": "",
		"":               "",
		"@":              "",
	}
	for in, want := range cases {
		if got := channelURL(in); got != want {
			t.Errorf("channelURL(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestSubscribeKeyboard_PublicChannel(t *testing.T) {
	kb := subscribeKeyboard("@promo")
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected subscribe + confirm rows, got %d", len(kb.InlineKeyboard))
	}
	if kb.InlineKeyboard[0][0].URL != "https://t.me/promo" {
		t.Errorf("subscribe URL = %q", kb.InlineKeyboard[0][0].URL)
	}
	if kb.InlineKeyboard[1][0].CallbackData != cbCheckSubscription {
		t.Errorf("confirm callback = %q", kb.InlineKeyboard[1][0].CallbackData)
	}
}

func TestSubscribeKeyboard_PrivateChannelSkipsLink(t *testing.T) {
	kb := subscribeKeyboard("-1001234567890")
	if len(kb.InlineKeyboard) != 1 {
		t.Fatalf("private channel must only offer the confirm button, got %d rows", len(kb.InlineKeyboard))
	}
	if kb.InlineKeyboard[0][0].CallbackData != cbCheckSubscription {
		t.Errorf("confirm callback = %q", kb.InlineKeyboard[0][0].CallbackData)
	}
}

// ---------- publish summary ----------

func summaryButton() *domain.ButtonDefinition {
	return &domain.ButtonDefinition{
		MessageID:  42,
		PostTitle:  "Free Guide",
		ButtonText: "Get <it>",
		Kind:       domain.RewardExternalLink,
		Link:       "https://example.com/guide",
	}
}

func TestPublishedSummary(t *testing.T) {
	got := publishedSummary(&services.PublishResult{Button: summaryButton(), ButtonPatched: true})
	if !strings.Contains(got, "<code>42</code>") {
		t.Errorf("post id missing: %q", got)
	}
	if !strings.Contains(got, "Get &lt;it&gt;") {
		t.Errorf("button text not escaped: %q", got)
	}
	if strings.Contains(got, "⚠️") {
		t.Errorf("patched publish must not warn: %q", got)
	}

	got = publishedSummary(&services.PublishResult{Button: summaryButton(), ButtonPatched: false})
	if !strings.Contains(got, "⚠️") {
		t.Errorf("unpatched publish must warn: %q", got)
	}
}

// ---------- stats screen ----------

func TestStatsText_Empty(t *testing.T) {
	if got := statsText(nil, 0); got != msgStatsEmpty {
		t.Errorf("empty stats = %q", got)
	}
}

func TestStatsText_ClipsAndCounts(t *testing.T) {
	long := strings.Repeat("x", 50)
	items := []services.ButtonStats{
		{
			Button: domain.ButtonDefinition{ButtonText: long, PostTitle: "Guide", Kind: domain.RewardBotAccess},
			Clicks: 7, UniqueUsers: 3,
		},
	}
	got := statsText(items, 5)
	if !strings.Contains(got, strings.Repeat("x", 30)+"...") {
		t.Errorf("button text not clipped: %q", got)
	}
	if strings.Contains(got, strings.Repeat("x", 31)) {
		t.Errorf("clip exceeded 30 runes: %q", got)
	}
	if !strings.Contains(got, "7 clicks") || !strings.Contains(got, "3 users") {
		t.Errorf("counters missing: %q", got)
	}
	if !strings.Contains(got, "... and 4 more") {
		t.Errorf("overflow marker missing: %q", got)
	}
}

func TestClipText(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"overflowing", 5, "overf..."},
		{"привет мир", 6, "привет..."},
	}
	for _, c := range cases {
		if got := clipText(c.in, c.max); got != c.want {
			t.Errorf("clipText(%q, %d) = %q; want %q", c.in, c.max, got, c.want)
		}
	}
}

// ---------- error rendering ----------

func TestChannelCheckFailedText(t *testing.T) {
	cases := map[telegram.ErrorKind]string{
		telegram.KindForbidden:   "no access",
		telegram.KindUnavailable: "did not respond",
		telegram.KindNotFound:    "not found",
	}
	for kind, want := range cases {
		err := &telegram.APIError{Method: "getChat", Code: 400, Description: "x", Kind: kind}
		if got := channelCheckFailedText(err); !strings.Contains(got, want) {
			t.Errorf("kind %v: %q does not mention %q", kind, got, want)
		}
	}
}

func TestPublishFailedText(t *testing.T) {
	forbidden := &telegram.APIError{Method: "sendMessage", Code: 403, Description: "bot was kicked", Kind: telegram.KindForbidden}
	if got := publishFailedText(forbidden); !strings.Contains(got, "administrator") {
		t.Errorf("forbidden publish should hint at admin rights: %q", got)
	}
	unavailable := &telegram.APIError{Method: "sendMessage", Code: 502, Description: "bad gateway", Kind: telegram.KindUnavailable}
	if got := publishFailedText(unavailable); !strings.Contains(got, "not responding") {
		t.Errorf("unavailable publish text: %q", got)
	}
}
