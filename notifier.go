package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/maypok86/otter/v2"
)

// ServerEvent represents a server-sent event
type ServerEvent struct {
	Type string `json:"type"` // "match" | "info" | "error"
	Data any    `json:"data,omitempty"`
}

// MatchEvent is the payload of a "match" event
type MatchEvent struct {
	OtherUserID    int    `json:"other_user_id"`
	OtherFirstName string `json:"other_first_name"`
}

// Client represents a WebSocket client connection
type Client struct {
	userID int
	conn   *websocket.Conn
	send   chan ServerEvent
}

// Hub manages WebSocket client connections
type Hub struct {
	clientsByUser map[int]map[*Client]bool
	mu            sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clientsByUser: make(map[int]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

func (h *Hub) sendToUser(userID int, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if peers, ok := h.clientsByUser[userID]; ok {
		for c := range peers {
			select {
			case c.send <- evt:
			default:
				// Drop event if user's buffer is full
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For development: allow the app dev origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// global hub
var eventHub = newHub()

// wsEventsHandler serves /ws/events. The stream is server-to-client only;
// inbound frames are read and discarded to keep the pong handler running.
func wsEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromRequest(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WS upgrade error for user %d: %v", userID, err)
			return
		}

		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
		}
		eventHub.register(client)

		// Announce connection to this client
		client.send <- ServerEvent{Type: "info", Data: "connected"}

		go clientWriter(client)
		clientReader(client)
	}
}

// Extract user ID from Authorization header using the existing jwtSecret
// This mirrors the authenticate() logic, but returns (id,ok) instead of wrapping a handler.
func getUserIDFromBearer(r *http.Request) (int, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 8 || auth[:7] != "Bearer " {
		return 0, false
	}
	tokenStr := auth[7:]
	id, ok := parseUserIDFromJWT(tokenStr)
	return id, ok
}

func getUserIDFromRequest(r *http.Request) (int, bool) {
	// Try Authorization header first
	if id, ok := getUserIDFromBearer(r); ok {
		return id, true
	}
	// Fallback: token query param for WS (browsers can't set headers)
	q := r.URL.Query().Get("token")
	if q != "" {
		return parseUserIDFromJWT(q)
	}
	return 0, false
}

func parseUserIDFromJWT(tokenStr string) (int, bool) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	// jwt.MapClaims stores numbers as float64 by default
	fv, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false
	}
	return int(fv), true
}

func clientReader(c *Client) {
	defer func() {
		eventHub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func clientWriter(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// nameCache caches first names by user id. Names change rarely, so a short
// TTL keeps match events cheap without serving stale data for long.
type nameCache struct {
	db    *sql.DB
	cache *otter.Cache[int, string]
}

func newNameCache(db *sql.DB) *nameCache {
	return &nameCache{
		db: db,
		cache: otter.Must(&otter.Options[int, string]{
			MaximumSize:      10_000,
			ExpiryCalculator: otter.ExpiryWriting[int, string](10 * time.Minute),
		}),
	}
}

func (n *nameCache) FirstName(ctx context.Context, userID int) (string, error) {
	if name, ok := n.cache.GetIfPresent(userID); ok {
		return name, nil
	}
	var name string
	err := n.db.QueryRowContext(ctx, `SELECT first_name FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		return "", err
	}
	n.cache.Set(userID, name)
	return name, nil
}

// matchNotifier pushes "match" events to both sides of a new match.
type matchNotifier struct {
	hub   *Hub
	names *nameCache
}

func newMatchNotifier(hub *Hub, names *nameCache) *matchNotifier {
	return &matchNotifier{hub: hub, names: names}
}

func (n *matchNotifier) NotifyMatch(userA, userB int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nameA, errA := n.names.FirstName(ctx, userA)
	nameB, errB := n.names.FirstName(ctx, userB)
	if errA != nil || errB != nil {
		log.Println("match notify: name lookup failed:", errA, errB)
		return
	}

	n.hub.sendToUser(userA, ServerEvent{Type: "match", Data: MatchEvent{OtherUserID: userB, OtherFirstName: nameB}})
	n.hub.sendToUser(userB, ServerEvent{Type: "match", Data: MatchEvent{OtherUserID: userA, OtherFirstName: nameA}})
}
