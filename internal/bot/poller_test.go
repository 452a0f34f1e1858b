package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// ---------- fakes ----------

// scriptedSource replays one batch (or error) per GetUpdates call and
// cancels the context once the script runs out.
type scriptedSource struct {
	batches [][]telegram.Update
	errs    []error
	cancel  context.CancelFunc

	calls          int
	offsets        []int64
	webhookDeletes int
	dropPending    bool
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration, _ []string) ([]telegram.Update, error) {
	s.offsets = append(s.offsets, offset)
	if s.calls >= len(s.batches) {
		s.cancel()
		return nil, ctx.Err()
	}
	batch, err := s.batches[s.calls], s.errs[s.calls]
	s.calls++
	return batch, err
}

func (s *scriptedSource) DeleteWebhook(_ context.Context, dropPending bool) error {
	s.webhookDeletes++
	s.dropPending = dropPending
	return nil
}

type recordingHandler struct {
	ids []int64
}

func (h *recordingHandler) HandleUpdate(_ context.Context, u *telegram.Update) {
	h.ids = append(h.ids, u.UpdateID)
}

func runPoller(t *testing.T, src *scriptedSource, h UpdateHandler, tweak func(*Poller)) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src.cancel = cancel

	p := NewPoller(src, h, zerolog.Nop())
	p.RetryDelay = time.Millisecond
	if tweak != nil {
		tweak(p)
	}
	return p.Run(ctx)
}

// ---------- tests ----------

func TestPoller_DispatchesInOrderAndAdvancesOffset(t *testing.T) {
	src := &scriptedSource{
		batches: [][]telegram.Update{
			{{UpdateID: 5}, {UpdateID: 6}},
			{{UpdateID: 7}},
		},
		errs: []error{nil, nil},
	}
	h := &recordingHandler{}

	err := runPoller(t, src, h, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v; want context.Canceled", err)
	}

	if want := []int64{5, 6, 7}; len(h.ids) != 3 || h.ids[0] != want[0] || h.ids[1] != want[1] || h.ids[2] != want[2] {
		t.Fatalf("handled ids = %v; want %v", h.ids, want)
	}
	// First poll from zero, then past each batch.
	if len(src.offsets) != 3 || src.offsets[0] != 0 || src.offsets[1] != 7 || src.offsets[2] != 8 {
		t.Fatalf("poll offsets = %v; want [0 7 8]", src.offsets)
	}
	if src.webhookDeletes != 1 {
		t.Fatalf("webhook deletes = %d; want 1", src.webhookDeletes)
	}
}

func TestPoller_RetriesAfterPollError(t *testing.T) {
	src := &scriptedSource{
		batches: [][]telegram.Update{nil, {{UpdateID: 9}}},
		errs:    []error{errors.New("telegram: 502"), nil},
	}
	h := &recordingHandler{}

	if err := runPoller(t, src, h, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v; want context.Canceled", err)
	}
	if len(h.ids) != 1 || h.ids[0] != 9 {
		t.Fatalf("handled ids = %v; want [9]", h.ids)
	}
	// The failed poll must not advance the offset.
	if len(src.offsets) != 3 || src.offsets[1] != 0 {
		t.Fatalf("poll offsets = %v; failed poll advanced the offset", src.offsets)
	}
}

func TestPoller_PassesDropPendingToWebhookDelete(t *testing.T) {
	src := &scriptedSource{}
	if err := runPoller(t, src, &recordingHandler{}, func(p *Poller) { p.DropPending = true }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v; want context.Canceled", err)
	}
	if !src.dropPending {
		t.Fatalf("DropPending was not forwarded to deleteWebhook")
	}
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&scriptedSource{}, &recordingHandler{}, zerolog.Nop())
	if p.PollTimeout != 30*time.Second {
		t.Errorf("PollTimeout = %v; want 30s", p.PollTimeout)
	}
	if p.RetryDelay != 3*time.Second {
		t.Errorf("RetryDelay = %v; want 3s", p.RetryDelay)
	}
}
