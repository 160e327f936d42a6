package presence

import (
	"sort"
	"sync"

	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/observability"
)

type entry struct {
	models.PresenceEntry
	connTokens map[string]struct{}
	seq        uint64
}

// Registry tracks which pharmacists are currently reachable. Mutation
// happens only from connection lifecycle events; each registration
// carries a token identifying its owning connection, and the entry
// holds the set of live tokens so that a stale unregister from a dead
// connection can never evict a fresh one and a pharmacist with several
// open tabs stays online until the last one closes.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*entry
	nextSeq uint64

	onChange func([]models.PresenceEntry)
}

// NewRegistry creates an empty registry. onChange is invoked with the
// current snapshot after every change; it may be nil.
func NewRegistry(onChange func([]models.PresenceEntry)) *Registry {
	return &Registry{
		entries:  make(map[int]*entry),
		onChange: onChange,
	}
}

// Register adds a connection to the pharmacist's presence entry,
// creating the entry on the first connection. The latest registration
// refreshes the display metadata.
func (r *Registry) Register(meta models.PresenceEntry, connToken string) {
	r.mu.Lock()
	existing, ok := r.entries[meta.PharmacistID]
	if ok {
		existing.PresenceEntry = meta
		existing.connTokens[connToken] = struct{}{}
	} else {
		r.entries[meta.PharmacistID] = &entry{
			PresenceEntry: meta,
			connTokens:    map[string]struct{}{connToken: {}},
			seq:           r.nextSeq,
		}
		r.nextSeq++
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	observability.SetOnlinePharmacists(len(snapshot))
	r.notify(snapshot)
}

// Unregister removes one connection from the pharmacist's entry; the
// entry goes away only when no live connection remains. A token the
// entry does not hold, such as a disconnect of an old connection after
// the pharmacist reconnected, is a no-op.
func (r *Registry) Unregister(pharmacistID int, connToken string) {
	r.mu.Lock()
	existing, ok := r.entries[pharmacistID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, owned := existing.connTokens[connToken]; !owned {
		r.mu.Unlock()
		return
	}
	delete(existing.connTokens, connToken)
	if len(existing.connTokens) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, pharmacistID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	observability.SetOnlinePharmacists(len(snapshot))
	r.notify(snapshot)
}

// List returns the current snapshot ordered by registration time.
// An empty registry yields an empty slice, never an error.
func (r *Registry) List() []models.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// IsOnline reports whether the pharmacist currently has an entry.
func (r *Registry) IsOnline(pharmacistID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[pharmacistID]
	return ok
}

func (r *Registry) snapshotLocked() []models.PresenceEntry {
	ordered := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	snapshot := make([]models.PresenceEntry, 0, len(ordered))
	for _, e := range ordered {
		snapshot = append(snapshot, e.PresenceEntry)
	}
	return snapshot
}

func (r *Registry) notify(snapshot []models.PresenceEntry) {
	if r.onChange != nil {
		r.onChange(snapshot)
	}
}
