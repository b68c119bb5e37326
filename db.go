package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
)

var db *sql.DB

func initDB() {
	// .env is optional; deployments set the variables directly.
	_ = godotenv.Load()

	// Get database URL from environment variable, fallback to default for development
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = "user=admin password=password dbname=dateadb sslmode=disable"
		log.Default().Println("Warning: DATABASE_URL not set, using default connection string")
	}

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Error connecting to the database:", err)
	}

	// The database container may still be starting up; retry the first ping
	// with backoff instead of failing outright.
	err = retry.Do(
		func() error { return db.Ping() },
		retry.Context(context.Background()),
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Database not reachable yet (attempt %d): %v", n+1, err)
		}),
	)
	if err != nil {
		log.Fatal("Cannot reach the database:", err)
	}
	log.Default().Println("Database connection established successfully")

	if err := ensureSchema(db); err != nil {
		log.Fatal("Error initializing database schema:", err)
	}
}

// ensureSchema creates the tables on first start. Every statement is
// idempotent, so running it against an existing database is a no-op.
func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    first_name TEXT NOT NULL,
    age INT NOT NULL,
    gender TEXT NOT NULL,
    gender_preference TEXT NOT NULL,
    min_age_preference INT NOT NULL DEFAULT 18,
    max_age_preference INT NOT NULL DEFAULT 99,
    times_liked INT NOT NULL DEFAULT 0,
    times_disliked INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS likes (
    user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    target_user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, target_user_id)
);

CREATE TABLE IF NOT EXISTS dislikes (
    user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    target_user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, target_user_id)
);

CREATE TABLE IF NOT EXISTS matches (
    id SERIAL PRIMARY KEY,
    match_key TEXT UNIQUE NOT NULL,
    user_a INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    user_b INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pictures (
    id SERIAL PRIMARY KEY,
    user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    position INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pictures_user ON pictures(user_id, position);
CREATE INDEX IF NOT EXISTS idx_matches_user_a ON matches(user_a);
CREATE INDEX IF NOT EXISTS idx_matches_user_b ON matches(user_b);
`
