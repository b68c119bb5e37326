package main

import (
	"database/sql"
	"net/http"
)

// DataLoaderMiddleware injects fresh per-request dataloaders into the
// request context, so batched loads never leak between requests.
func DataLoaderMiddleware(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dataloaders := NewDataLoaders(db)
			ctx := WithDataLoaders(r.Context(), dataloaders)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
