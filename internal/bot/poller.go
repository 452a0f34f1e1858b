// Package bot – Poller
//
// Long-polling update loop for deployments without a public HTTPS
// endpoint. The poller removes any active webhook first (Telegram refuses
// getUpdates while one is set), then fetches and dispatches updates until
// the context ends. Failed polls back off and retry; a crash-restart
// re-reads from the last unacknowledged update, which is why the
// dispatcher dedups by update id.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// pollAllowedUpdates narrows delivery to what the dispatcher handles.
var pollAllowedUpdates = []string{"message", "callback_query"}

// UpdateSource is the polling surface of the Telegram client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, pollTimeout time.Duration, allowed []string) ([]telegram.Update, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// UpdateHandler consumes one update. *Dispatcher satisfies it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u *telegram.Update)
}

// Poller runs the getUpdates loop.
type Poller struct {
	// Source fetches updates.
	Source UpdateSource
	// Handler processes them.
	Handler UpdateHandler

	// PollTimeout is the long-poll window.
	PollTimeout time.Duration
	// RetryDelay is the wait after a failed poll.
	RetryDelay time.Duration
	// DropPending discards updates queued while the bot was down.
	DropPending bool
	// Log receives poll failures.
	Log zerolog.Logger
}

// NewPoller constructs a Poller with sane defaults.
func NewPoller(src UpdateSource, h UpdateHandler, log zerolog.Logger) *Poller {
	return &Poller{
		Source:      src,
		Handler:     h,
		PollTimeout: 30 * time.Second,
		RetryDelay:  3 * time.Second,
		Log:         log,
	}
}

// Run polls until ctx is done and returns ctx.Err(). Updates within one
// batch are handled in order; the offset advances past every received
// update before the next poll, so a handled update is never re-fetched.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Source.DeleteWebhook(ctx, p.DropPending); err != nil {
		p.Log.Warn().Err(err).Msg("webhook delete failed; polling may conflict with an active webhook")
	}
	p.Log.Info().Dur("poll_timeout", p.PollTimeout).Msg("polling for updates")

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := p.Source.GetUpdates(ctx, offset, p.PollTimeout, pollAllowedUpdates)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Error().Err(err).Msg("poll failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.RetryDelay):
			}
			continue
		}

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.Handler.HandleUpdate(ctx, u)
		}
	}
}
