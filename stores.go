package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datea-app/backend/feed"
)

// profileStore implements feed.ProfileStore over the users table.
type profileStore struct {
	db *sql.DB
}

// QueryCandidates returns one page of raw candidates in stable id order.
// Mutual-preference and age predicates run in SQL; the score band and
// exclusion sets are the controller's job.
func (s *profileStore) QueryCandidates(ctx context.Context, q feed.Query) ([]feed.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, age, gender, gender_preference, times_liked, times_disliked
		FROM users
		WHERE id <> $1
		  AND gender = $2
		  AND gender_preference = $3
		  AND age BETWEEN $4 AND $5
		  AND id > $6
		ORDER BY id
		LIMIT $7
	`, q.ViewerID, q.Gender, q.GenderPreference, q.MinAge, q.MaxAge, q.AfterID, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []feed.Profile
	for rows.Next() {
		var p feed.Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.Age, &p.Gender, &p.GenderPreference, &p.TimesLiked, &p.TimesDisliked); err != nil {
			return nil, err
		}
		page = append(page, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := attachPictureURLs(ctx, s.db, page); err != nil {
		return nil, err
	}
	return page, nil
}

// attachPictureURLs fills PictureURLs for every profile in the page with a
// single query over the pictures table.
func attachPictureURLs(ctx context.Context, db *sql.DB, page []feed.Profile) error {
	if len(page) == 0 {
		return nil
	}

	index := make(map[int]int, len(page)) // user id -> position in page
	placeholders := make([]string, len(page))
	args := make([]interface{}, len(page))
	for i := range page {
		index[page[i].ID] = i
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = page[i].ID
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT user_id, filename
		FROM pictures
		WHERE user_id IN (%s)
		ORDER BY user_id, position
	`, joinPlaceholders(placeholders)), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var userID int
		var filename string
		if err := rows.Scan(&userID, &filename); err != nil {
			return err
		}
		if i, ok := index[userID]; ok {
			page[i].PictureURLs = append(page[i].PictureURLs, pictureURL(userID, filename))
		}
	}
	return rows.Err()
}

// interactionStore implements feed.InteractionStore over the likes, dislikes
// and matches tables.
type interactionStore struct {
	db *sql.DB
}

func (s *interactionStore) LikedSet(ctx context.Context, userID int) (map[int]struct{}, error) {
	return s.idSet(ctx, `SELECT target_user_id FROM likes WHERE user_id = $1`, userID)
}

func (s *interactionStore) DislikedSet(ctx context.Context, userID int) (map[int]struct{}, error) {
	return s.idSet(ctx, `SELECT target_user_id FROM dislikes WHERE user_id = $1`, userID)
}

func (s *interactionStore) idSet(ctx context.Context, query string, userID int) (map[int]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

func (s *interactionStore) RecordLike(ctx context.Context, from, to int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO likes (user_id, target_user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, from, to)
	return err
}

func (s *interactionStore) RecordDislike(ctx context.Context, from, to int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dislikes (user_id, target_user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, from, to)
	return err
}

func (s *interactionStore) HasLiked(ctx context.Context, from, to int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM likes WHERE user_id = $1 AND target_user_id = $2)
	`, from, to).Scan(&exists)
	return exists, err
}

func (s *interactionStore) RevokeLike(ctx context.Context, from, to int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM likes WHERE user_id = $1 AND target_user_id = $2
	`, from, to)
	return err
}

func (s *interactionStore) IncrementLikeCounter(ctx context.Context, profileID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET times_liked = times_liked + 1 WHERE id = $1
	`, profileID)
	return err
}

func (s *interactionStore) IncrementDislikeCounter(ctx context.Context, profileID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET times_disliked = times_disliked + 1 WHERE id = $1
	`, profileID)
	return err
}

// CreateMatch writes one match record per user pair. The key is derived from
// the sorted pair, so two near-simultaneous mutual accepts collapse into a
// single row instead of erroring.
func (s *interactionStore) CreateMatch(ctx context.Context, userA, userB int) error {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (match_key, user_a, user_b) VALUES ($1, $2, $3)
		ON CONFLICT (match_key) DO NOTHING
	`, fmt.Sprintf("%d_%d", lo, hi), lo, hi)
	return err
}

// isMatched reports whether two users share a match record.
func isMatched(db *sql.DB, a, b int) (bool, error) {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM matches WHERE match_key = $1)
	`, fmt.Sprintf("%d_%d", lo, hi)).Scan(&exists)
	return exists, err
}
