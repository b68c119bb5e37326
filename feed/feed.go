// Package feed implements the candidate feed: a bounded look-ahead stack of
// profiles the current user has not yet decided on, refilled from the profile
// store as the user swipes through it.
package feed

import (
	"context"
	"errors"
)

// Tunables for the stack/refill state machine.
const (
	// StackCapacity bounds the look-ahead stack.
	StackCapacity = 10
	// PageSize is how many raw candidates one store query returns at most.
	PageSize = 10
	// LowWaterMark is the stack size below which a refill is triggered.
	LowWaterMark = 3
	// MaxScoreLevel is the highest selectable score filter level.
	MaxScoreLevel = 4
)

// Outcome is the user's decision on the profile at the head of the stack.
type Outcome int

const (
	Accept Outcome = iota
	Reject
)

var (
	// ErrStaleDecision is returned when a decision targets a profile that is
	// no longer at the head of the stack (e.g. a delayed UI event after a
	// refill). The decision is not recorded.
	ErrStaleDecision = errors.New("profile is not at the head of the stack")
)

// Profile is an immutable candidate snapshot. The controller never mutates
// profiles; counter updates happen in the store as a side effect of decisions.
type Profile struct {
	ID               int      `json:"id"`
	FirstName        string   `json:"first_name"`
	Age              int      `json:"age"`
	Gender           string   `json:"gender"`
	GenderPreference string   `json:"gender_preference"`
	PictureURLs      []string `json:"picture_urls"`
	TimesLiked       int      `json:"times_liked"`
	TimesDisliked    int      `json:"times_disliked"`
}

// Score is the like ratio as a percentage. Profiles nobody has decided on yet
// sit in the middle of the scale.
func (p Profile) Score() float64 {
	total := p.TimesLiked + p.TimesDisliked
	if total == 0 {
		return 50
	}
	return float64(p.TimesLiked) / float64(total) * 100
}

// Viewer is the user the feed is built for, with the preferences that shape
// the candidate query.
type Viewer struct {
	ID               int
	Gender           string
	GenderPreference string
	MinAge           int
	MaxAge           int
}

// ScoreRange is the selected score filter band. Both bounds are inclusive.
type ScoreRange struct {
	Min float64
	Max float64
}

// Contains reports whether a score falls inside the band.
func (r ScoreRange) Contains(score float64) bool {
	return score >= r.Min && score <= r.Max
}

// RangeForLevel maps a discrete filter level (0-4) to its 20-point band.
// Out-of-range levels are clamped.
func RangeForLevel(level int) ScoreRange {
	level = clampLevel(level)
	return ScoreRange{Min: float64(level * 20), Max: float64(level*20 + 20)}
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxScoreLevel {
		return MaxScoreLevel
	}
	return level
}

// Query describes one candidate page request against the profile store.
// AfterID is a keyset cursor: only profiles with a larger ID are returned,
// in stable ID order. Zero means "from the start".
type Query struct {
	ViewerID         int
	Gender           string // candidate's declared gender
	GenderPreference string // candidate's declared preference
	MinAge           int
	MaxAge           int
	AfterID          int
	Limit            int
}

// ProfileStore is the paginated, filterable candidate query interface.
type ProfileStore interface {
	QueryCandidates(ctx context.Context, q Query) ([]Profile, error)
}

// InteractionStore records and queries liked/disliked/matched relations.
// Likes and dislikes are directional (from -> to); matches are symmetric and
// CreateMatch must be idempotent for a given user pair regardless of order.
type InteractionStore interface {
	LikedSet(ctx context.Context, userID int) (map[int]struct{}, error)
	DislikedSet(ctx context.Context, userID int) (map[int]struct{}, error)
	RecordLike(ctx context.Context, from, to int) error
	RecordDislike(ctx context.Context, from, to int) error
	HasLiked(ctx context.Context, from, to int) (bool, error)
	RevokeLike(ctx context.Context, from, to int) error
	IncrementLikeCounter(ctx context.Context, profileID int) error
	IncrementDislikeCounter(ctx context.Context, profileID int) error
	CreateMatch(ctx context.Context, userA, userB int) error
}

// Notifier receives fire-and-forget match events. The controller never waits
// on it and never fails a decision because of it.
type Notifier interface {
	NotifyMatch(userA, userB int)
}
