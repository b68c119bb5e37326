package main

import (
	"context"
	"database/sql"
	"net/http"

	"encoding/json"

	"github.com/datea-app/backend/feed"
)

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// withTx wraps a function in a database transaction.
// - Ensures COMMIT on success, ROLLBACK on errors or panics.
// - Keeps handler bodies tiny and all state changes atomic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		// If the callback panics, make sure to rollback before re-panicking
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// loadViewer reads the user row that shapes the candidate query for a feed
// session.
func loadViewer(db *sql.DB, userID int) (feed.Viewer, error) {
	var v feed.Viewer
	err := db.QueryRow(`
		SELECT id, gender, gender_preference, min_age_preference, max_age_preference
		FROM users
		WHERE id = $1
	`, userID).Scan(&v.ID, &v.Gender, &v.GenderPreference, &v.MinAge, &v.MaxAge)
	return v, err
}
