package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/datea-app/backend/feed"

	"github.com/graph-gophers/dataloader/v7"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// DataLoaders holds all the dataloaders for the application
type DataLoaders struct {
	ProfileLoader *dataloader.Loader[int, *feed.Profile]
}

// NewDataLoaders creates new dataloaders with the database connection
func NewDataLoaders(db *sql.DB) *DataLoaders {
	return &DataLoaders{
		ProfileLoader: dataloader.NewBatchedLoader(profileBatchFn(db), dataloader.WithWait[int, *feed.Profile](16*time.Millisecond)),
	}
}

// GetDataLoadersFromContext retrieves dataloaders from context
func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

// WithDataLoaders adds dataloaders to context
func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// profileBatchFn creates a batch function for loading profiles
func profileBatchFn(db *sql.DB) dataloader.BatchFunc[int, *feed.Profile] {
	return func(ctx context.Context, keys []int) []*dataloader.Result[*feed.Profile] {
		results := make([]*dataloader.Result[*feed.Profile], len(keys))

		// Track which key maps to which slot in results
		keyMap := make(map[int]int, len(keys))
		for i, key := range keys {
			keyMap[key] = i
			results[i] = &dataloader.Result[*feed.Profile]{}
		}

		if len(keys) == 0 {
			return results
		}

		placeholders := make([]string, len(keys))
		args := make([]interface{}, len(keys))
		for i, key := range keys {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = key
		}

		query := fmt.Sprintf(`
			SELECT id, first_name, age, gender, gender_preference, times_liked, times_disliked
			FROM users
			WHERE id IN (%s)
		`, joinPlaceholders(placeholders))

		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			for i := range results {
				results[i].Error = err
			}
			return results
		}
		defer rows.Close()

		loaded := make([]feed.Profile, 0, len(keys))
		for rows.Next() {
			var p feed.Profile
			err := rows.Scan(&p.ID, &p.FirstName, &p.Age, &p.Gender, &p.GenderPreference, &p.TimesLiked, &p.TimesDisliked)
			if err != nil {
				for i := range results {
					if results[i].Data == nil && results[i].Error == nil {
						results[i].Error = err
					}
				}
				return results
			}
			loaded = append(loaded, p)
		}

		if err := attachPictureURLs(ctx, db, loaded); err != nil {
			for i := range results {
				results[i].Error = err
			}
			return results
		}

		for i := range loaded {
			if idx, ok := keyMap[loaded[i].ID]; ok {
				results[idx].Data = &loaded[i]
			}
		}
		for i := range results {
			if results[i].Data == nil && results[i].Error == nil {
				results[i].Error = fmt.Errorf("user %d not found", keys[i])
			}
		}

		return results
	}
}

// Helper function to join placeholders for IN clause
func joinPlaceholders(placeholders []string) string {
	if len(placeholders) == 0 {
		return ""
	}
	result := placeholders[0]
	for i := 1; i < len(placeholders); i++ {
		result += ", " + placeholders[i]
	}
	return result
}
