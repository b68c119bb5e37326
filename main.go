package main

import (
	"log"
	"net/http"
	"os"
)

// JWT secret from environment variable or fallback
func getJWTSecret() []byte {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("your_secret_key_please_change_in_production")
}

var jwtSecret = getJWTSecret()

func main() {
	initDB()

	mux := http.NewServeMux()

	// Make sure that the upload directory for pictures exists
	_ = os.MkdirAll(pictureRoot, 0o755)

	names := newNameCache(db)
	notifier := newMatchNotifier(eventHub, names)
	sessions := newFeedSessions(db, notifier)

	// Core auth & user endpoints
	mux.Handle("/register", registerHandler(db))
	mux.Handle("/login", loginHandler(db))
	mux.Handle("/me", meHandler(db))
	mux.Handle("/me/settings", settingsHandler(db, sessions))
	mux.Handle("/users/", userHandler(db, sessions, names))

	// Candidate feed
	mux.Handle("/feed", feedHandler(sessions))
	mux.Handle("/feed/decision", decisionHandler(sessions))
	mux.Handle("/feed/", feedControlHandler(sessions)) // /feed/restart, /feed/filter

	// Matches with batched profile loading
	mux.Handle("/matches", DataLoaderMiddleware(db)(matchesHandler(db)))

	// WebSocket event stream (match notifications)
	mux.Handle("/ws/events", wsEventsHandler())

	// Pictures
	mux.Handle("/me/pictures", myPicturesHandler(db))   // POST
	mux.Handle("/me/pictures/", myPicturesHandler(db))  // DELETE /me/pictures/{id}
	mux.Handle("/pictures/", getPictureHandler(db, sessions))

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	log.Default().Println("Starting Date-A Backend on port 8080...")
	http.ListenAndServe(":8080", withCORS(mux))
}
