package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Telegram Bot API over HTTPS. It is safe for concurrent
// use. The client does no logging; callers decide how/what to log.
type Client struct {
	token   string
	apiURL  string
	httpc   *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host (tests, proxies).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.apiURL = base + "/bot" + c.token }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

// WithTimeout sets the per-request deadline for everything except long polls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSendRate caps outbound send/edit calls. Telegram throttles bots at
// roughly 30 messages per second globally; rps <= 0 disables the limiter.
func WithSendRate(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient builds a Bot API client for the given token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		apiURL:  defaultBaseURL + "/bot" + token,
		httpc:   &http.Client{},
		timeout: 10 * time.Second,
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// apiResponse is the Bot API envelope every method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// call POSTs payload to method and decodes the result envelope into out.
// Non-OK envelopes and transport failures come back as *APIError.
func (c *Client) call(ctx context.Context, timeout time.Duration, method string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return transportError(method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return transportError(method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return transportError(method, err)
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// Errors still arrive as JSON envelopes; an undecodable body means
		// something between us and Telegram (proxy, LB) answered instead.
		return &APIError{
			Method:      method,
			Code:        resp.StatusCode,
			Description: resp.Status,
			Kind:        classify(resp.StatusCode, resp.Status),
			wrapped:     err,
		}
	}
	if !env.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        env.ErrorCode,
			Description: env.Description,
			Kind:        classify(env.ErrorCode, env.Description),
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return transportError(method, err)
		}
	}
	return nil
}

// throttle blocks until the send limiter admits one more outbound message.
func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return transportError("throttle", err)
	}
	return nil
}

// GetMe returns the bot's own account, used at startup to validate the token
// and learn the username deep links are built from.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, c.timeout, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for new updates starting at offset. The HTTP
// deadline is the poll timeout plus grace so Telegram closes the poll, not us.
func (c *Client) GetUpdates(ctx context.Context, offset int64, pollTimeout time.Duration, allowed []string) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": int(pollTimeout.Seconds()),
	}
	if len(allowed) > 0 {
		payload["allowed_updates"] = allowed
	}
	var out []Update
	if err := c.call(ctx, pollTimeout+10*time.Second, "getUpdates", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage sends an HTML-formatted message to a private chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	var m Message
	if err := c.call(ctx, c.timeout, "sendMessage", payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendChannelPost publishes an HTML-formatted post to a channel, addressed
// by "@username" or numeric chat id. The returned message carries the id the
// registry needs for click attribution.
func (c *Client) SendChannelPost(ctx context.Context, channel, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"chat_id":    channel,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	var m Message
	if err := c.call(ctx, c.timeout, "sendMessage", payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendPhoto sends a photo by URL with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) (*Message, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"chat_id": chatID,
		"photo":   photoURL,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	var m Message
	if err := c.call(ctx, c.timeout, "sendPhoto", payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessageReplyMarkup swaps the inline keyboard of an existing channel
// post. The publish flow uses it to patch the placeholder button once the
// post id is known.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, channel string, messageID int64, markup *InlineKeyboardMarkup) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	payload := map[string]any{
		"chat_id":      channel,
		"message_id":   messageID,
		"reply_markup": markup,
	}
	return c.call(ctx, c.timeout, "editMessageReplyMarkup", payload, nil)
}

// EditMessageText rewrites an existing bot message in place. Callback
// handlers use it to turn the pressed menu into its next screen.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, c.timeout, "editMessageText", payload, nil)
}

// GetChatMember returns userID's membership record in the given channel.
func (c *Client) GetChatMember(ctx context.Context, channel string, userID int64) (*ChatMember, error) {
	payload := map[string]any{
		"chat_id": channel,
		"user_id": userID,
	}
	var m ChatMember
	if err := c.call(ctx, c.timeout, "getChatMember", payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetChat fetches basic chat info. Used to validate admin-supplied channel
// usernames before they are stored.
func (c *Client) GetChat(ctx context.Context, channel string) (*Chat, error) {
	payload := map[string]any{
		"chat_id": channel,
	}
	var ch Chat
	if err := c.call(ctx, c.timeout, "getChat", payload, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// AnswerCallbackQuery acknowledges a button press so the client spinner stops.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, c.timeout, "answerCallbackQuery", payload, nil)
}

// SetWebhook registers url for update delivery, guarded by the secret token
// Telegram echoes back in X-Telegram-Bot-Api-Secret-Token.
func (c *Client) SetWebhook(ctx context.Context, url, secret string, allowed []string) error {
	payload := map[string]any{"url": url}
	if secret != "" {
		payload["secret_token"] = secret
	}
	if len(allowed) > 0 {
		payload["allowed_updates"] = allowed
	}
	return c.call(ctx, c.timeout, "setWebhook", payload, nil)
}

// DeleteWebhook unregisters the webhook, switching the bot back to polling.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	payload := map[string]any{"drop_pending_updates": dropPending}
	return c.call(ctx, c.timeout, "deleteWebhook", payload, nil)
}
