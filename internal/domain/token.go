package domain

import (
	"strconv"
	"strings"
)

// StartTokenPrefix is the deep-link payload prefix that marks a channel
// button entry. Payloads look like "channel_button_42" (button-scoped) or
// the bare "channel_button" (placeholder links published before the post id
// is known).
const StartTokenPrefix = "channel_button"

// StartToken is the parsed form of a /start deep-link payload.
//
// Only two payload shapes carry meaning: "channel_button_<digits>" and the
// literal "channel_button". Everything else, including an absent payload,
// is a plain entry with no button context.
type StartToken struct {
	Raw    string // payload as received; may be empty
	Known  bool   // payload matches one of the recognized shapes
	PostID int64  // referenced channel post id; 0 for the bare form
}

// HasPost reports whether the token references a concrete channel post.
func (t StartToken) HasPost() bool { return t.PostID > 0 }

// ParseStartToken classifies a raw /start payload.
//
// The post id suffix must be all digits: "channel_button_12x",
// "channel_button_-3" and "channel_button_" are plain entries, not
// malformed button references.
func ParseStartToken(raw string) StartToken {
	tok := StartToken{Raw: raw}
	if raw == StartTokenPrefix {
		tok.Known = true
		return tok
	}
	rest, ok := strings.CutPrefix(raw, StartTokenPrefix+"_")
	if !ok || rest == "" {
		return tok
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return tok
		}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		// all-digits but out of int64 range; still a button-shaped token
		tok.Known = true
		return tok
	}
	tok.Known = true
	tok.PostID = id
	return tok
}
