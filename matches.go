package main

import (
	"database/sql"
	"net/http"

	"github.com/datea-app/backend/feed"
)

type matchEntry struct {
	MatchID int           `json:"match_id"`
	Profile *feed.Profile `json:"profile"`
}

// GET /matches - every match for the caller, newest first, with the peer's
// profile batch-loaded through the request dataloaders.
func matchesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(int)

		rows, err := db.Query(`
			SELECT id, user_a, user_b FROM matches
			WHERE user_a = $1 OR user_b = $1
			ORDER BY id DESC
		`, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		defer rows.Close()

		matchIDs := []int{}
		peerIDs := []int{}
		for rows.Next() {
			var matchID, userA, userB int
			if err := rows.Scan(&matchID, &userA, &userB); err != nil {
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			peer := userA
			if peer == userID {
				peer = userB
			}
			matchIDs = append(matchIDs, matchID)
			peerIDs = append(peerIDs, peer)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		entries := []matchEntry{}
		if len(peerIDs) > 0 {
			loaders := GetDataLoadersFromContext(r.Context())
			if loaders == nil {
				writeError(w, http.StatusInternalServerError, "loader_error")
				return
			}
			profiles, errs := loaders.ProfileLoader.LoadMany(r.Context(), peerIDs)()
			if len(errs) > 0 {
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			for i, matchID := range matchIDs {
				entries = append(entries, matchEntry{MatchID: matchID, Profile: profiles[i]})
			}
		}

		writeJSON(w, http.StatusOK, map[string][]matchEntry{"matches": entries})
	})
}
