package bot

import (
	"sync"

	"github.com/tbourn/go-magnet-bot/internal/services"
)

// wizardStep is the typed state of an admin dialog. A wizard advances
// strictly forward; any /cancel or expiry drops it back to nothing.
type wizardStep int

const (
	// stepButtonText waits for the inline button caption.
	stepButtonText wizardStep = iota + 1
	// stepKind waits for the reward-kind callback.
	stepKind
	// stepExternalLink waits for the reward URL (external kind only).
	stepExternalLink
	// stepChannel waits for the target channel username.
	stepChannel
	// stepPostText waits for the post body; its input triggers the publish.
	stepPostText
	// stepGateChannel waits for the new subscription gate channel
	// (/set_channel flow, separate from publishing).
	stepGateChannel
)

// wizardState is one admin's dialog position plus the draft collected so far.
type wizardState struct {
	Step  wizardStep
	Draft services.PublishRequest
}

// wizardStore keeps per-admin wizard state in memory. Admin dialogs are
// bound to one bot process; losing them on restart only means retyping a
// wizard, so no persistence is warranted.
type wizardStore struct {
	mu sync.Mutex
	m  map[int64]*wizardState
}

func newWizardStore() *wizardStore {
	return &wizardStore{m: make(map[int64]*wizardState)}
}

// get returns the admin's current state, or nil when no wizard is active.
func (w *wizardStore) get(adminID int64) *wizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m[adminID]
}

// set stores (or replaces) the admin's wizard state.
func (w *wizardStore) set(adminID int64, st *wizardState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.m[adminID] = st
}

// clear drops the admin's wizard, if any.
func (w *wizardStore) clear(adminID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.m, adminID)
}
