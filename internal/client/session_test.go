package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-chat-service/internal/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades each connection and echoes every send frame back
// as a confirmed message event.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	nextID := 100
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame models.ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type != models.FrameTypeSend {
				continue
			}
			nextID++
			msg := models.ChatMessage{
				ID:           nextID,
				CustomerID:   1,
				PharmacistID: frame.ReceiverID,
				SenderRole:   models.RoleCustomer,
				Content:      frame.Content,
				SentAt:       frame.SentAt,
			}
			if err := conn.WriteJSON(models.ChatEvent{Type: models.EventTypeMessage, Message: &msg}); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSendBeforeOpenFailsFast(t *testing.T) {
	session := NewSessionChannel(SessionConfig{URL: "ws://localhost:0"})
	err := session.Send(7, "hello", time.Now())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionConnectSendReceive(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	session := NewSessionChannel(SessionConfig{URL: wsURL(server)})

	received := make(chan models.ChatMessage, 1)
	states := make(chan State, 64)
	session.OnMessage(func(msg models.ChatMessage) { received <- msg })
	session.OnStateChange(func(state State) { states <- state })

	require.NoError(t, session.Open(context.Background()))
	defer session.Close()

	waitForState(t, states, StateConnected)

	require.NoError(t, session.Send(7, "hello", time.Now()))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, 7, msg.PharmacistID)
		assert.NotZero(t, msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestSessionReconnectsAfterDrop(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	session := NewSessionChannel(SessionConfig{
		URL:        wsURL(server),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})

	states := make(chan State, 64)
	session.OnStateChange(func(state State) { states <- state })

	require.NoError(t, session.Open(context.Background()))
	defer session.Close()

	waitForState(t, states, StateConnected)

	// Kill every open connection; the channel must notice and redial.
	server.CloseClientConnections()

	waitForState(t, states, StateDisconnected)
	waitForState(t, states, StateConnected)

	require.NoError(t, session.Send(7, "after reconnect", time.Now()))
}

func TestSendWhileDisconnectedFailsFast(t *testing.T) {
	server := echoServer(t)

	session := NewSessionChannel(SessionConfig{
		URL:        wsURL(server),
		MinBackoff: 50 * time.Millisecond,
	})

	states := make(chan State, 64)
	session.OnStateChange(func(state State) { states <- state })

	require.NoError(t, session.Open(context.Background()))
	defer session.Close()

	waitForState(t, states, StateConnected)

	// Take the server down entirely so the redial cannot succeed.
	server.CloseClientConnections()
	server.Close()
	waitForState(t, states, StateDisconnected)

	require.Eventually(t, func() bool {
		return session.Send(7, "x", time.Now()) == ErrNotConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func waitForState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}
