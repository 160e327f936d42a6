package client

import (
	"sync"
	"time"

	"pharmacy-chat-service/internal/models"
)

// Summary is one row of the customer's conversation list.
type Summary struct {
	PharmacistID  int
	DisplayName   string
	AvatarRef     string
	Online        bool
	LastMessage   string
	LastMessageAt time.Time
	Unread        int
}

// Directory is the client-side list of known conversations, derived
// from presence snapshots plus pharmacists surfaced through referral
// actions. It is rebuilt from presence on each session start; nothing
// is persisted.
type Directory struct {
	mu       sync.Mutex
	entries  map[int]*Summary
	order    []int
	fallback *models.PresenceEntry
}

// NewDirectory builds a directory. fallback, when non-nil, is the
// default contact shown if no pharmacist is reachable.
func NewDirectory(fallback *models.PresenceEntry) *Directory {
	return &Directory{
		entries:  make(map[int]*Summary),
		fallback: fallback,
	}
}

// ApplyPresence reconciles the directory with a presence snapshot.
// Listed pharmacists become online (added if unknown); everyone else
// goes offline but stays listed so an in-progress conversation does
// not vanish when the pharmacist drops.
func (d *Directory) ApplyPresence(snapshot []models.PresenceEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.entries {
		s.Online = false
	}
	for _, p := range snapshot {
		s := d.ensureLocked(p.PharmacistID)
		s.DisplayName = p.DisplayName
		if p.AvatarRef != "" {
			s.AvatarRef = p.AvatarRef
		}
		s.Online = true
	}
}

// Add surfaces a pharmacist via a referral action. Adding an already
// known pharmacist changes nothing.
func (d *Directory) Add(pharmacistID int, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.entries[pharmacistID]; known {
		return
	}
	s := d.ensureLocked(pharmacistID)
	s.DisplayName = name
}

// NoteMessage records a message against its conversation: preview,
// timestamp, and the unread counter when the conversation is not the
// active one.
func (d *Directory) NoteMessage(msg models.ChatMessage, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.ensureLocked(msg.PharmacistID)
	if msg.SentAt.After(s.LastMessageAt) {
		s.LastMessage = msg.Content
		s.LastMessageAt = msg.SentAt
	}
	if !active && msg.SenderRole == models.RolePharmacist {
		s.Unread++
	}
}

// ClearUnread zeroes the unread counter, typically on conversation open.
func (d *Directory) ClearUnread(pharmacistID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.entries[pharmacistID]; ok {
		s.Unread = 0
	}
}

// List returns conversation summaries in first-seen order. When the
// directory is empty and a fallback contact is configured, the fallback
// is returned as the single, offline entry.
func (d *Directory) List() []Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.order) == 0 {
		if d.fallback == nil {
			return nil
		}
		return []Summary{{
			PharmacistID: d.fallback.PharmacistID,
			DisplayName:  d.fallback.DisplayName,
			AvatarRef:    d.fallback.AvatarRef,
		}}
	}

	out := make([]Summary, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.entries[id])
	}
	return out
}

func (d *Directory) ensureLocked(pharmacistID int) *Summary {
	if s, ok := d.entries[pharmacistID]; ok {
		return s
	}
	s := &Summary{PharmacistID: pharmacistID}
	d.entries[pharmacistID] = s
	d.order = append(d.order, pharmacistID)
	return s
}
