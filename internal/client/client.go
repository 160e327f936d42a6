package client

import (
	"context"
	"log"
	"time"

	"pharmacy-chat-service/internal/models"
)

// transport is the slice of SessionChannel the coordinator depends on.
type transport interface {
	Send(receiverID int, content string, sentAt time.Time) error
	State() State
}

// Config configures the customer-side chat client.
type Config struct {
	CustomerID int
	// ConfirmWindow bounds placeholder-to-echo matching; zero means the
	// reconciler default.
	ConfirmWindow time.Duration
	// DefaultContact, when non-nil, is shown if no pharmacist is online.
	DefaultContact *models.PresenceEntry
}

// Client is the customer-side chat core: it routes live events between
// the session channel, the reconciler of the active conversation, and
// the conversation directory, and drives history loads on conversation
// open and on reconnect.
type Client struct {
	cfg      Config
	channel  transport
	loader   HistoryLoader
	presence PresenceLoader
	rec      *Reconciler
	dir      *Directory
}

// New builds a Client around an opened-elsewhere transport and a
// history loader. A loader that also implements PresenceLoader enables
// RefreshPresence.
func New(cfg Config, channel transport, loader HistoryLoader) *Client {
	c := &Client{
		cfg:     cfg,
		channel: channel,
		loader:  loader,
		rec:     NewReconciler(cfg.CustomerID, cfg.ConfirmWindow),
		dir:     NewDirectory(cfg.DefaultContact),
	}
	if pl, ok := loader.(PresenceLoader); ok {
		c.presence = pl
	}
	return c
}

// Bind registers the client's handlers on a session channel. Call
// before Open.
func (c *Client) Bind(session *SessionChannel) {
	session.OnMessage(c.HandleMessage)
	session.OnPresence(c.HandlePresence)
	session.OnStateChange(c.HandleStateChange)
}

// OpenConversation switches the active conversation to the pharmacist
// and seeds it from history. It blocks on the history fetch; run it in
// its own goroutine when the caller must not wait. A rapid second
// switch invalidates this call's generation, so a late result is
// discarded rather than leaking into the newer conversation. On
// history failure the conversation degrades to live-only and the error
// is returned wrapped in ErrHistoryUnavailable.
func (c *Client) OpenConversation(ctx context.Context, pharmacistID int) error {
	gen := c.rec.Switch(pharmacistID)
	c.dir.Add(pharmacistID, "")
	c.dir.ClearUnread(pharmacistID)

	history, err := c.loader.Load(ctx, c.cfg.CustomerID, pharmacistID, HistoryOptions{})
	if err != nil {
		log.Printf("history load failed for pharmacist %d, showing live only: %v", pharmacistID, err)
		return err
	}
	c.rec.SeedHistory(gen, history)
	return nil
}

// Send delivers a message to the active conversation, appending an
// optimistic placeholder that the server echo later confirms. It fails
// fast with ErrNotConnected while the channel is down, and a write that
// fails after the connected check takes its placeholder down with it,
// so an errored send never leaves anything on screen or buffered.
func (c *Client) Send(content string) error {
	pharmacistID := c.rec.ActivePharmacist()
	if pharmacistID == 0 {
		return ErrNoActiveConversation
	}
	if c.channel.State() != StateConnected {
		return ErrNotConnected
	}

	entry := c.rec.AppendLocal(content)
	if err := c.channel.Send(pharmacistID, content, entry.Message.SentAt); err != nil {
		c.rec.DiscardPending(entry.LocalID)
		return err
	}
	c.dir.NoteMessage(entry.Message, true)
	return nil
}

// HandleMessage routes one inbound live event. Events for the active
// conversation are merged into the visible sequence; events for other
// conversations only update the directory (preview, unread counter).
func (c *Client) HandleMessage(msg models.ChatMessage) {
	if msg.CustomerID != c.cfg.CustomerID {
		return
	}
	active := c.rec.Apply(msg)
	c.dir.NoteMessage(msg, active)
}

// RefreshPresence seeds the directory from a REST presence fetch,
// covering the window before the session channel delivers its first
// snapshot. Fails with ErrPresenceUnavailable when the loader has no
// presence support or the fetch fails.
func (c *Client) RefreshPresence(ctx context.Context) error {
	if c.presence == nil {
		return ErrPresenceUnavailable
	}
	snapshot, err := c.presence.LoadPresence(ctx)
	if err != nil {
		return err
	}
	c.dir.ApplyPresence(snapshot)
	return nil
}

// HandlePresence feeds a presence snapshot into the directory.
func (c *Client) HandlePresence(snapshot []models.PresenceEntry) {
	c.dir.ApplyPresence(snapshot)
}

// HandleStateChange reloads the active conversation's history after a
// reconnect, so messages sent while the channel was down appear without
// duplicating what was already on screen.
func (c *Client) HandleStateChange(state State) {
	if state != StateConnected {
		return
	}
	// Partner and generation must come from one snapshot: reading them
	// separately lets a concurrent OpenConversation slip in between and
	// pair the old partner with the new generation.
	pharmacistID, gen := c.rec.Active()
	if pharmacistID == 0 {
		return
	}

	go func() {
		history, err := c.loader.Load(context.Background(), c.cfg.CustomerID, pharmacistID, HistoryOptions{})
		if err != nil {
			log.Printf("catch-up history load failed for pharmacist %d: %v", pharmacistID, err)
			return
		}
		c.rec.SeedHistory(gen, history)
	}()
}

// Messages returns the reconciled sequence of the active conversation.
func (c *Client) Messages() []Entry {
	return c.rec.Messages()
}

// Unconfirmed returns optimistic messages whose echo never arrived
// within the confirmation window.
func (c *Client) Unconfirmed() []Entry {
	return c.rec.Unconfirmed()
}

// Conversations returns the directory's summaries.
func (c *Client) Conversations() []Summary {
	return c.dir.List()
}
