package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const pictureRoot = "./uploads/pictures"

// pictureURL is the public path a stored picture is served from.
func pictureURL(userID int, filename string) string {
	return fmt.Sprintf("/pictures/%d/%s", userID, filename)
}

// POST /me/pictures  (multipart form, field name: "file")
// DELETE /me/pictures/{id}
func myPicturesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := r.Context().Value(userIDKey).(int)

		if r.Method == http.MethodDelete {
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			// /me/pictures/{id}
			if len(parts) != 3 || parts[0] != "me" || parts[1] != "pictures" {
				http.NotFound(w, r)
				return
			}
			pictureID, err := strconv.Atoi(parts[2])
			if err != nil {
				http.NotFound(w, r)
				return
			}
			if err := removePicture(db, me, pictureID); err != nil {
				http.Error(w, "remove_failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method_not_allowed", http.StatusMethodNotAllowed)
			return
		}

		// Limit to ~3MB
		r.Body = http.MaxBytesReader(w, r.Body, 3<<20)
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			http.Error(w, "file_too_large_or_missing", http.StatusRequestEntityTooLarge)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing_file", http.StatusBadRequest)
			return
		}
		defer f.Close()

		// Sniff MIME from the first bytes
		head := make([]byte, 512)
		n, _ := f.Read(head)
		ctype := http.DetectContentType(head[:n])
		if ctype != "image/jpeg" {
			http.Error(w, "only_jpeg_allowed", http.StatusBadRequest)
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			http.Error(w, "seek_failed", http.StatusInternalServerError)
			return
		}

		dir := filepath.Join(pictureRoot, strconv.Itoa(me))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			http.Error(w, "mkdir_failed", http.StatusInternalServerError)
			return
		}

		filename := uuid.NewString() + ".jpg"
		dst := filepath.Join(dir, filename)
		tmp := dst + ".tmp"

		out, err := os.Create(tmp)
		if err != nil {
			http.Error(w, "save_failed", http.StatusInternalServerError)
			return
		}
		if _, err := io.Copy(out, f); err != nil {
			out.Close()
			http.Error(w, "save_failed", http.StatusInternalServerError)
			return
		}
		out.Close()
		if err := os.Rename(tmp, dst); err != nil {
			http.Error(w, "save_failed", http.StatusInternalServerError)
			return
		}

		// Append behind the user's existing pictures
		var pictureID int
		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			var next int
			if err := tx.QueryRow(`
				SELECT COALESCE(MAX(position), -1) + 1 FROM pictures WHERE user_id = $1
			`, me).Scan(&next); err != nil {
				return err
			}
			return tx.QueryRow(`
				INSERT INTO pictures (user_id, filename, position)
				VALUES ($1, $2, $3)
				RETURNING id
			`, me, filename, next).Scan(&pictureID)
		})
		if err != nil {
			// If the database fails, remove the orphaned file.
			_ = os.Remove(dst)
			http.Error(w, "db_update_failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":  pictureID,
			"url": pictureURL(me, filename),
		})
	})
}

// GET /pictures/{userId}/{filename}
// Visible to the owner, matched peers, and users with the owner queued in
// their feed.
func getPictureHandler(db *sql.DB, sessions *feedSessions) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method_not_allowed", http.StatusMethodNotAllowed)
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// /pictures/{userId}/{filename}
		if len(parts) != 3 || parts[0] != "pictures" {
			http.NotFound(w, r)
			return
		}
		ownerID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		me := r.Context().Value(userIDKey).(int)

		if !canViewUser(db, sessions, me, ownerID) {
			// 404 so that the file existence is not revealed to bad actors
			http.NotFound(w, r)
			return
		}

		// Only serve files the owner actually registered
		filename := filepath.Base(parts[2])
		var exists bool
		err = db.QueryRow(`
			SELECT EXISTS (SELECT 1 FROM pictures WHERE user_id = $1 AND filename = $2)
		`, ownerID, filename).Scan(&exists)
		if err != nil || !exists {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(pictureRoot, strconv.Itoa(ownerID), filename)
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		// Light cache - busted in frontend ?ts=timestamp
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeFile(w, r, path)
	})
}

func removePicture(db *sql.DB, userID, pictureID int) error {
	var filename string
	err := db.QueryRow(`
		DELETE FROM pictures WHERE id = $1 AND user_id = $2 RETURNING filename
	`, pictureID, userID).Scan(&filename)
	if err == sql.ErrNoRows {
		// Not theirs or already gone; nothing to remove
		return nil
	} else if err != nil {
		return fmt.Errorf("error removing picture record: %w", err)
	}

	// Protecting the path. Only using basename to avoid injection of ../ etc.
	fullPath := filepath.Join(pictureRoot, strconv.Itoa(userID), filepath.Base(filename))
	if rmErr := os.Remove(fullPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("error removing picture file %q: %w", fullPath, rmErr)
	}
	return nil
}
