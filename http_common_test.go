package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestWithTx(t *testing.T) {
	requireDB(t)

	t.Run("Successful transaction", func(t *testing.T) {
		err := withTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.Exec("SELECT 1")
			return err
		})

		if err != nil {
			t.Errorf("Expected successful transaction, got error: %v", err)
		}
	})

	t.Run("Transaction with error rollback", func(t *testing.T) {
		testError := errors.New("test error")

		err := withTx(context.Background(), db, func(tx *sql.Tx) error {
			return testError
		})

		if err != testError {
			t.Errorf("Expected test error, got: %v", err)
		}
	})

	t.Run("Transaction with SQL error rollback", func(t *testing.T) {
		err := withTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.Exec("INVALID SQL STATEMENT")
			return err
		})

		if err == nil {
			t.Error("Expected SQL error, got nil")
		}
	})

	t.Run("Transaction with panic recovery", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic to be re-raised")
			}
		}()

		withTx(context.Background(), db, func(tx *sql.Tx) error {
			panic("test panic")
		})
	})
}

func TestLoadViewer(t *testing.T) {
	requireDB(t)

	email := "loadviewer@example.com"
	defer cleanupTestData(email)
	user := createTestUserWithAttrs(t, email, "password123", testProfileAttrs{
		FirstName:        "Vera",
		Age:              34,
		Gender:           GenderFemale,
		GenderPreference: GenderMale,
	})

	viewer, err := loadViewer(db, user.ID)
	if err != nil {
		t.Fatalf("loadViewer failed: %v", err)
	}
	if viewer.ID != user.ID {
		t.Errorf("expected viewer id %d, got %d", user.ID, viewer.ID)
	}
	if viewer.Gender != GenderFemale || viewer.GenderPreference != GenderMale {
		t.Errorf("unexpected viewer attributes: %+v", viewer)
	}
	if viewer.MinAge != 18 || viewer.MaxAge != 99 {
		t.Errorf("expected default age bounds 18-99, got %d-%d", viewer.MinAge, viewer.MaxAge)
	}

	t.Run("Missing user", func(t *testing.T) {
		if _, err := loadViewer(db, -1); err == nil {
			t.Error("expected error for missing user")
		}
	})
}
