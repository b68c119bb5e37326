package main

import (
	"database/sql"
	"log"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// TestUser carries the credentials of a user created for a test
type TestUser struct {
	ID       int
	Email    string
	Password string
	Token    string
}

// dbAvailable is false when no test database is reachable. Handler tests
// call requireDB and skip in that case; pure in-memory tests still run.
var dbAvailable bool

func TestMain(m *testing.M) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		connStr = "host=localhost port=5433 user=admin password=password dbname=dateadb_test sslmode=disable"
	}

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Error opening the test database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err == nil {
		if err := ensureSchema(db); err != nil {
			log.Fatal("Error initializing test schema:", err)
		}
		dbAvailable = true
	} else {
		log.Println("Test database not reachable, skipping database-backed tests:", err)
	}

	os.Exit(m.Run())
}

func requireDB(t *testing.T) {
	t.Helper()
	if !dbAvailable {
		t.Skip("test database not available")
	}
}
