package ws

import "testing"

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient(1, nil, ConnInfo{UserID: 1})
	if len(hub.clients) != 1 {
		t.Fatalf("expected client entry to be created")
	}

	hub.RemoveClient(1, nil)
	if len(hub.clients) != 0 {
		t.Fatalf("expected client entry to be removed")
	}
}

func TestHubWatcherLifecycle(t *testing.T) {
	hub := NewHub()

	hub.AddClient(2, nil, ConnInfo{UserID: 2})
	hub.AddWatcher(2, nil)
	if len(hub.watchers) != 1 {
		t.Fatalf("expected watcher to be registered")
	}

	hub.RemoveClient(2, nil)
	if len(hub.watchers) != 0 {
		t.Fatalf("expected watcher to be removed with the client")
	}
}

func TestHubWatcherRequiresRegisteredClient(t *testing.T) {
	hub := NewHub()

	hub.AddWatcher(3, nil)
	if len(hub.watchers) != 0 {
		t.Fatalf("expected unknown connection to be ignored")
	}
}
