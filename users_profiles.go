package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/datea-app/backend/feed"
)

// GET /me - own profile with preferences and rating counters
func meHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(int)

		var email string
		var minAge, maxAge int
		var p feed.Profile
		err := db.QueryRow(`
			SELECT id, email, first_name, age, gender, gender_preference,
			       min_age_preference, max_age_preference, times_liked, times_disliked
			FROM users WHERE id = $1
		`, userID).Scan(&p.ID, &email, &p.FirstName, &p.Age, &p.Gender, &p.GenderPreference,
			&minAge, &maxAge, &p.TimesLiked, &p.TimesDisliked)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "not_found")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		pictures, err := userPictureURLs(db, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":                 p.ID,
			"email":              email,
			"first_name":         p.FirstName,
			"age":                p.Age,
			"gender":             p.Gender,
			"gender_preference":  p.GenderPreference,
			"min_age_preference": minAge,
			"max_age_preference": maxAge,
			"times_liked":        p.TimesLiked,
			"times_disliked":     p.TimesDisliked,
			"score":              p.Score(),
			"picture_urls":       pictures,
		})
	})
}

type settingsRequest struct {
	GenderPreference *string `json:"gender_preference" validate:"omitempty,oneof=Male Female Other"`
	MinAge           *int    `json:"min_age_preference" validate:"omitempty,gte=18,lte=120"`
	MaxAge           *int    `json:"max_age_preference" validate:"omitempty,gte=18,lte=120"`
}

// PATCH /me/settings - partial update of discovery preferences. Any change
// drops the cached feed session so the next fetch uses the new filters.
func settingsHandler(db *sql.DB, sessions *feedSessions) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_settings")
			return
		}
		if req.MinAge != nil && req.MaxAge != nil && *req.MinAge > *req.MaxAge {
			writeError(w, http.StatusBadRequest, "invalid_age_range")
			return
		}
		userID := r.Context().Value(userIDKey).(int)

		_, err := db.Exec(`
			UPDATE users SET
				gender_preference = COALESCE($2, gender_preference),
				min_age_preference = COALESCE($3, min_age_preference),
				max_age_preference = COALESCE($4, max_age_preference)
			WHERE id = $1
		`, userID, req.GenderPreference, req.MinAge, req.MaxAge)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "settings_save_error")
			log.Println("Error saving settings:", err)
			return
		}
		sessions.invalidate(userID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// GET /users/{id} - public summary of another user. Visible to the user
// themselves, to matched peers and to anyone who currently has them queued
// in their feed.
func userHandler(db *sql.DB, sessions *feedSessions, names *nameCache) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "users" {
			http.NotFound(w, r)
			return
		}
		targetID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		requesterID := r.Context().Value(userIDKey).(int)

		if !canViewUser(db, sessions, requesterID, targetID) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		firstName, err := names.FirstName(r.Context(), targetID)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		var age int
		if err := db.QueryRow(`SELECT age FROM users WHERE id = $1`, targetID).Scan(&age); err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		pictures, err := userPictureURLs(db, targetID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":           targetID,
			"first_name":   firstName,
			"age":          age,
			"picture_urls": pictures,
		})
	})
}

// canViewUser is the shared visibility policy for user summaries and their
// pictures.
func canViewUser(db *sql.DB, sessions *feedSessions, requesterID, targetID int) bool {
	if requesterID == targetID {
		return true
	}
	if matched, err := isMatched(db, requesterID, targetID); err == nil && matched {
		return true
	}
	return sessions.inStack(requesterID, targetID)
}

func userPictureURLs(db *sql.DB, userID int) ([]string, error) {
	rows, err := db.Query(`
		SELECT filename FROM pictures WHERE user_id = $1 ORDER BY position
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := []string{}
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		urls = append(urls, pictureURL(userID, filename))
	}
	return urls, rows.Err()
}
