package client

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pharmacy-chat-service/internal/models"
)

// State describes the session channel's connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

const (
	defaultMinBackoff  = 500 * time.Millisecond
	defaultMaxBackoff  = 15 * time.Second
	defaultDialTimeout = 10 * time.Second
)

// SessionConfig configures a SessionChannel.
type SessionConfig struct {
	// URL of the websocket endpoint, e.g. ws://host/ws/chat.
	URL string
	// Token is the externally issued identity token.
	Token string

	Dialer      *websocket.Dialer
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	DialTimeout time.Duration
}

// SessionChannel is the bidirectional transport between one client tab
// and the server. It dials asynchronously, redials with bounded backoff
// on unexpected disconnects, and fails sends fast while disconnected.
// It performs no replay on reconnect; catching up is the history
// loader's job, triggered by the state-change callback.
type SessionChannel struct {
	cfg SessionConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	cancel context.CancelFunc
	opened bool
	done   chan struct{}

	onMessage  func(models.ChatMessage)
	onPresence func([]models.PresenceEntry)
	onState    func(State)
}

// NewSessionChannel builds a channel; Open starts it.
func NewSessionChannel(cfg SessionConfig) *SessionChannel {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &SessionChannel{cfg: cfg, state: StateDisconnected, done: make(chan struct{})}
}

// OnMessage registers the inbound message callback, invoked once per
// transport event in arrival order. Must be set before Open.
func (s *SessionChannel) OnMessage(fn func(models.ChatMessage)) { s.onMessage = fn }

// OnPresence registers the presence snapshot callback. Must be set
// before Open.
func (s *SessionChannel) OnPresence(fn func([]models.PresenceEntry)) { s.onPresence = fn }

// OnStateChange registers the connection state callback. Must be set
// before Open.
func (s *SessionChannel) OnStateChange(fn func(State)) { s.onState = fn }

// Open starts the connect loop and returns without waiting for the
// handshake; completion is observed through OnStateChange.
func (s *SessionChannel) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return errors.New("session channel already open")
	}
	s.opened = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Send enqueues an outbound message for the given receiver. It fails
// with ErrNotConnected instead of buffering while the channel is down.
func (s *SessionChannel) Send(receiverID int, content string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteJSON(models.ClientFrame{
		Type:       models.FrameTypeSend,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     sentAt,
	})
}

// State returns the current connection state.
func (s *SessionChannel) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the channel down and stops reconnection attempts.
func (s *SessionChannel) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	opened := s.opened
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if opened {
		<-s.done
	}
	return nil
}

func (s *SessionChannel) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateDisconnected, nil)

	backoff := s.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting, nil)

		conn, err := s.dial(ctx)
		if err != nil {
			s.setState(StateDisconnected, nil)
			log.Printf("session dial failed, retrying in %v: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, s.cfg.MaxBackoff)
			continue
		}

		backoff = s.cfg.MinBackoff
		s.setState(StateConnected, conn)
		s.readLoop(conn)
		conn.Close()
		s.setState(StateDisconnected, nil)
	}
}

func (s *SessionChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, resp, err := s.cfg.Dialer.DialContext(dialCtx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (s *SessionChannel) readLoop(conn *websocket.Conn) {
	for {
		var event models.ChatEvent
		if err := conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("session read error: %v", err)
			}
			return
		}

		switch event.Type {
		case models.EventTypeMessage:
			if event.Message != nil && s.onMessage != nil {
				s.onMessage(*event.Message)
			}
		case models.EventTypePresence:
			if s.onPresence != nil {
				s.onPresence(event.Presence)
			}
		}
	}
}

func (s *SessionChannel) setState(state State, conn *websocket.Conn) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.conn = conn
	fn := s.onState
	s.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}
