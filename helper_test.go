package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// Initialize JWT secret for helper tests
func init() {
	jwtSecret = []byte("test-secret-key-for-testing")
}

// testProfileAttrs describes the dating attributes of a seeded user
type testProfileAttrs struct {
	FirstName        string
	Age              int
	Gender           string
	GenderPreference string
	TimesLiked       int
	TimesDisliked    int
}

func defaultAttrs() testProfileAttrs {
	return testProfileAttrs{
		FirstName:        "Test",
		Age:              30,
		Gender:           GenderFemale,
		GenderPreference: GenderMale,
	}
}

// createTestUser creates a user with default attributes and returns it with
// a valid token.
func createTestUser(t *testing.T, email, password string) TestUser {
	return createTestUserWithAttrs(t, email, password, defaultAttrs())
}

func createTestUserWithAttrs(t *testing.T, email, password string, attrs testProfileAttrs) TestUser {
	t.Helper()

	// Clean up existing user
	cleanupTestData(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}

	var userID int
	err = db.QueryRow(`
		INSERT INTO users (email, password_hash, first_name, age, gender, gender_preference, times_liked, times_disliked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, email, string(hash), attrs.FirstName, attrs.Age, attrs.Gender, attrs.GenderPreference,
		attrs.TimesLiked, attrs.TimesDisliked).Scan(&userID)
	if err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}

	token := loginUser(t, email, password)

	return TestUser{
		ID:       userID,
		Email:    email,
		Password: password,
		Token:    token,
	}
}

// loginUser logs in a user and returns the JWT token
func loginUser(t *testing.T, email, password string) string {
	t.Helper()

	reqBody := []byte(fmt.Sprintf(`{"email":"%s","password":"%s"}`, email, password))
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	loginHandler(db).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login failed for %s: status %d", email, w.Code)
	}

	var respBody map[string]string
	json.NewDecoder(w.Body).Decode(&respBody)
	token, ok := respBody["token"]
	if !ok {
		t.Fatalf("expected token in login response, got %v", respBody)
	}

	return token
}

// seedCandidate creates a user that should appear in the feed of a viewer
// with the default attributes (a woman seeking men).
func seedCandidate(t *testing.T, email string, timesLiked, timesDisliked int) TestUser {
	t.Helper()
	return createTestUserWithAttrs(t, email, "password123", testProfileAttrs{
		FirstName:        "Candidate",
		Age:              30,
		Gender:           GenderMale,
		GenderPreference: GenderFemale,
		TimesLiked:       timesLiked,
		TimesDisliked:    timesDisliked,
	})
}

func authRequest(method, target string, body []byte, token string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// cleanupTestData removes test data for given emails
func cleanupTestData(emails ...string) {
	for _, email := range emails {
		db.Exec("DELETE FROM likes WHERE user_id IN (SELECT id FROM users WHERE email = $1) OR target_user_id IN (SELECT id FROM users WHERE email = $1)", email)
		db.Exec("DELETE FROM dislikes WHERE user_id IN (SELECT id FROM users WHERE email = $1) OR target_user_id IN (SELECT id FROM users WHERE email = $1)", email)
		db.Exec("DELETE FROM matches WHERE user_a IN (SELECT id FROM users WHERE email = $1) OR user_b IN (SELECT id FROM users WHERE email = $1)", email)
		db.Exec("DELETE FROM pictures WHERE user_id IN (SELECT id FROM users WHERE email = $1)", email)
		db.Exec("DELETE FROM users WHERE email = $1", email)
	}
}
