package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func init() {
	jwtSecret = []byte("test-secret-key-for-testing")
}

func TestParseUserIDFromJWT(t *testing.T) {
	token, err := signUserToken(42)
	if err != nil {
		t.Fatalf("signUserToken failed: %v", err)
	}

	id, ok := parseUserIDFromJWT(token)
	if !ok {
		t.Fatal("expected token to parse")
	}
	if id != 42 {
		t.Errorf("expected user id 42, got %d", id)
	}

	if _, ok := parseUserIDFromJWT("not.a.token"); ok {
		t.Error("expected garbage token to fail")
	}
}

func TestGetUserIDFromRequest(t *testing.T) {
	token, err := signUserToken(7)
	if err != nil {
		t.Fatalf("signUserToken failed: %v", err)
	}

	t.Run("Authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		id, ok := getUserIDFromRequest(req)
		if !ok || id != 7 {
			t.Errorf("expected (7, true), got (%d, %v)", id, ok)
		}
	})

	t.Run("Token query parameter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test?token="+token, nil)

		id, ok := getUserIDFromRequest(req)
		if !ok || id != 7 {
			t.Errorf("expected (7, true), got (%d, %v)", id, ok)
		}
	})

	t.Run("No authentication", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)

		if id, ok := getUserIDFromRequest(req); ok || id != 0 {
			t.Errorf("expected (0, false), got (%d, %v)", id, ok)
		}
	})

	t.Run("Malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "NotBearer "+token)

		if _, ok := getUserIDFromRequest(req); ok {
			t.Error("expected malformed header to fail")
		}
	})
}

func TestHubSendToUser(t *testing.T) {
	hub := newHub()

	a1 := &Client{userID: 1, send: make(chan ServerEvent, 4)}
	a2 := &Client{userID: 1, send: make(chan ServerEvent, 4)}
	b := &Client{userID: 2, send: make(chan ServerEvent, 4)}
	hub.register(a1)
	hub.register(a2)
	hub.register(b)

	hub.sendToUser(1, ServerEvent{Type: "info", Data: "hello"})

	for _, c := range []*Client{a1, a2} {
		select {
		case evt := <-c.send:
			if evt.Type != "info" {
				t.Errorf("expected info event, got %q", evt.Type)
			}
		default:
			t.Error("expected event on every connection of user 1")
		}
	}
	select {
	case <-b.send:
		t.Error("user 2 should not receive user 1's event")
	default:
	}

	t.Run("Full buffer drops instead of blocking", func(t *testing.T) {
		full := &Client{userID: 3, send: make(chan ServerEvent)}
		hub.register(full)

		done := make(chan struct{})
		go func() {
			hub.sendToUser(3, ServerEvent{Type: "info"})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("sendToUser blocked on a full client buffer")
		}
	})

	t.Run("Unregister removes the connection", func(t *testing.T) {
		hub.unregister(a1)
		hub.sendToUser(1, ServerEvent{Type: "info"})
		select {
		case <-a1.send:
			t.Error("unregistered client should not receive events")
		default:
		}
	})
}

func TestMatchNotifierDeliversToBothUsers(t *testing.T) {
	requireDB(t)

	defer cleanupTestData("notify_a@example.com", "notify_b@example.com")
	userA := createTestUser(t, "notify_a@example.com", "password123")
	userB := seedCandidate(t, "notify_b@example.com", 0, 0)

	srv := httptest.NewServer(wsEventsHandler())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	dial := func(token string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		return conn
	}
	connA := dial(userA.Token)
	defer connA.Close()
	connB := dial(userB.Token)
	defer connB.Close()

	readEvent := func(conn *websocket.Conn) ServerEvent {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var evt ServerEvent
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return evt
	}

	// First frame on each connection is the "connected" info event
	if evt := readEvent(connA); evt.Type != "info" {
		t.Fatalf("expected info event, got %q", evt.Type)
	}
	if evt := readEvent(connB); evt.Type != "info" {
		t.Fatalf("expected info event, got %q", evt.Type)
	}

	notifier := newMatchNotifier(eventHub, newNameCache(db))
	notifier.NotifyMatch(userA.ID, userB.ID)

	evtA := readEvent(connA)
	if evtA.Type != "match" {
		t.Fatalf("expected match event for user A, got %q", evtA.Type)
	}
	payload, ok := evtA.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected event payload: %#v", evtA.Data)
	}
	if int(payload["other_user_id"].(float64)) != userB.ID {
		t.Errorf("expected other_user_id %d, got %v", userB.ID, payload["other_user_id"])
	}
	if payload["other_first_name"] != "Candidate" {
		t.Errorf("expected other_first_name Candidate, got %v", payload["other_first_name"])
	}

	if evtB := readEvent(connB); evtB.Type != "match" {
		t.Errorf("expected match event for user B, got %q", evtB.Type)
	}
}
