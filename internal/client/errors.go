package client

import "errors"

var (
	// ErrNotConnected is returned by Send while the session channel is
	// not in the connected state. Nothing is buffered; the caller
	// surfaces a retry affordance and may resend after reconnection.
	ErrNotConnected = errors.New("session channel not connected")

	// ErrHistoryUnavailable means the backlog fetch failed; the caller
	// degrades to a live-only view.
	ErrHistoryUnavailable = errors.New("history unavailable")

	// ErrPresenceUnavailable means the presence query failed; the
	// caller falls back to the configured default contact.
	ErrPresenceUnavailable = errors.New("presence unavailable")

	// ErrNoActiveConversation is returned by Send before any
	// conversation has been opened.
	ErrNoActiveConversation = errors.New("no active conversation")
)
