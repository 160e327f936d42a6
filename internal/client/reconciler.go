package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmacy-chat-service/internal/models"
)

const defaultConfirmWindow = 10 * time.Second

// Entry is one element of the reconciled sequence. A message is either
// pending (local-only, identified by LocalID) or confirmed (carries the
// store-assigned id).
type Entry struct {
	LocalID   string
	Message   models.ChatMessage
	Confirmed bool
}

// Reconciler owns the ordered, deduplicated message sequence for the
// currently active conversation. History loads and live events both
// feed it; the persisted id is the deduplication key, and the sequence
// stays non-decreasing in SentAt after every merge. Switching the
// conversation bumps a generation counter so a late-arriving history
// result for a previous conversation is discarded.
type Reconciler struct {
	mu           sync.Mutex
	customerID   int
	pharmacistID int
	generation   uint64
	entries      []Entry
	seen         map[int]struct{}
	window       time.Duration
	now          func() time.Time
}

// NewReconciler builds a reconciler for one customer. window bounds how
// far a server echo's timestamp may drift from the optimistic
// placeholder it confirms; zero means the default of 10 seconds.
func NewReconciler(customerID int, window time.Duration) *Reconciler {
	if window <= 0 {
		window = defaultConfirmWindow
	}
	return &Reconciler{
		customerID: customerID,
		seen:       make(map[int]struct{}),
		window:     window,
		now:        time.Now,
	}
}

// Switch makes pharmacistID the active conversation, discarding the
// previous sequence entirely, and returns the new generation. Callers
// pass the generation to SeedHistory so stale loads are rejected.
func (r *Reconciler) Switch(pharmacistID int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pharmacistID = pharmacistID
	r.generation++
	r.entries = nil
	r.seen = make(map[int]struct{})
	return r.generation
}

// ActivePharmacist returns the partner of the active conversation, or
// zero before the first Switch.
func (r *Reconciler) ActivePharmacist() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pharmacistID
}

// Active returns the partner and the generation of the active
// conversation under a single lock acquisition, so the pair can never
// mix one conversation's partner with a later conversation's
// generation.
func (r *Reconciler) Active() (int, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pharmacistID, r.generation
}

// SeedHistory merges a history load result into the sequence. It
// reports false when gen no longer matches the active conversation, in
// which case the result is discarded. Rows that belong to a different
// conversation than the active one are skipped, so even a load issued
// for the wrong partner cannot leak into the visible sequence. Pending
// entries and already known messages survive the merge; history rows
// are deduplicated by id.
func (r *Reconciler) SeedHistory(gen uint64, history []models.ChatMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return false
	}

	for _, msg := range history {
		if msg.ID == 0 {
			continue
		}
		if msg.CustomerID != r.customerID || msg.PharmacistID != r.pharmacistID {
			continue
		}
		if _, dup := r.seen[msg.ID]; dup {
			continue
		}
		r.seen[msg.ID] = struct{}{}
		r.entries = append(r.entries, Entry{Message: msg, Confirmed: true})
	}
	sortEntries(r.entries)
	return true
}

// Apply merges one live event. It reports false when the event does not
// belong to the active conversation; the visible sequence is unchanged
// in that case. A duplicate echo of a known id is absorbed silently,
// and an echo matching an optimistic placeholder replaces it instead of
// appending a second entry.
func (r *Reconciler) Apply(msg models.ChatMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pharmacistID == 0 || msg.CustomerID != r.customerID || msg.PharmacistID != r.pharmacistID {
		return false
	}

	if msg.ID != 0 {
		if _, dup := r.seen[msg.ID]; dup {
			return true
		}
		r.seen[msg.ID] = struct{}{}

		if i := r.matchPending(msg); i >= 0 {
			r.entries[i] = Entry{Message: msg, Confirmed: true}
			sortEntries(r.entries)
			return true
		}
	}

	r.entries = append(r.entries, Entry{Message: msg, Confirmed: msg.ID != 0})
	if n := len(r.entries); n > 1 && msg.SentAt.Before(r.entries[n-2].Message.SentAt) {
		sortEntries(r.entries)
	}
	return true
}

// AppendLocal appends an optimistic local-only placeholder for an
// outbound send and returns it. The placeholder is replaced when the
// server echo arrives within the confirmation window.
func (r *Reconciler) AppendLocal(content string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := Entry{
		LocalID: uuid.NewString(),
		Message: models.ChatMessage{
			CustomerID:   r.customerID,
			PharmacistID: r.pharmacistID,
			SenderRole:   models.RoleCustomer,
			Content:      content,
			SentAt:       r.now(),
		},
	}
	r.entries = append(r.entries, entry)
	return entry
}

// DiscardPending drops an unconfirmed placeholder from the sequence,
// used when the transport write fails after the placeholder was
// created. A confirmed entry or an unknown id is left alone.
func (r *Reconciler) DiscardPending(localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if !e.Confirmed && e.LocalID == localID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Messages returns a copy of the reconciled sequence.
func (r *Reconciler) Messages() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Unconfirmed returns pending entries older than the confirmation
// window. They stay visible; the caller renders them as "not
// confirmed" rather than treating the send as succeeded.
func (r *Reconciler) Unconfirmed() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	var stale []Entry
	for _, e := range r.entries {
		if !e.Confirmed && e.Message.SentAt.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	return stale
}

// matchPending finds the oldest pending placeholder the echo confirms:
// same sender, same content, timestamps within the window.
func (r *Reconciler) matchPending(msg models.ChatMessage) int {
	for i, e := range r.entries {
		if e.Confirmed {
			continue
		}
		if e.Message.SenderRole != msg.SenderRole || e.Message.Content != msg.Content {
			continue
		}
		delta := msg.SentAt.Sub(e.Message.SentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.window {
			return i
		}
	}
	return -1
}

// sortEntries restores SentAt order. The sort is stable so same-instant
// messages keep their arrival order, and confirmed ids break remaining
// ties deterministically.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Message, entries[j].Message
		if !a.SentAt.Equal(b.SentAt) {
			return a.SentAt.Before(b.SentAt)
		}
		return a.ID != 0 && b.ID != 0 && a.ID < b.ID
	})
}
