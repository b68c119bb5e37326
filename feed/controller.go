package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Controller owns the candidate stack for one user session. All state is
// behind a mutex so a UI decision handler and a background refill can run
// concurrently; the fetchInFlight flag keeps fetch cycles down to one at a
// time, and the generation counter lets an in-flight fetch detect that the
// stack it was filling has been invalidated under it.
type Controller struct {
	profiles     ProfileStore
	interactions InteractionStore
	notifier     Notifier // optional

	mu            sync.Mutex
	viewer        Viewer
	stack         []Profile
	cursor        int
	fetchInFlight bool
	level         int
	scoreRange    ScoreRange
	generation    uint64
}

// DefaultScoreLevel is the middle band, matching a fresh session where the
// user has not touched the filter yet.
const DefaultScoreLevel = 2

// NewController builds an idle controller. notifier may be nil.
func NewController(viewer Viewer, profiles ProfileStore, interactions InteractionStore, notifier Notifier) *Controller {
	return &Controller{
		profiles:     profiles,
		interactions: interactions,
		notifier:     notifier,
		viewer:       viewer,
		level:        DefaultScoreLevel,
		scoreRange:   RangeForLevel(DefaultScoreLevel),
	}
}

// StartFeed runs fetch cycles until the stack is out of the low-water zone or
// the store has no more candidates. Calling it while a fetch is already in
// flight is a no-op, so it is safe to fire from every stack-mutating
// operation. Store errors abandon the cycle and leave stack and cursor
// untouched; the caller may simply invoke StartFeed again.
func (c *Controller) StartFeed(ctx context.Context) error {
	c.mu.Lock()
	if c.fetchInFlight || len(c.stack) >= StackCapacity {
		c.mu.Unlock()
		return nil
	}
	c.fetchInFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.fetchInFlight = false
		c.mu.Unlock()
	}()

	for {
		fullPage, stale, err := c.fetchOnce(ctx)
		if err != nil {
			log.Println("feed: fetch cycle abandoned:", err)
			return err
		}
		if stale {
			// The filter changed mid-fetch and the results were discarded.
			// Go around again with the new range and cursor.
			continue
		}
		c.mu.Lock()
		again := fullPage && len(c.stack) < LowWaterMark
		c.mu.Unlock()
		if !again {
			return nil
		}
	}
}

// fetchOnce performs a single exclusion-read / query / filter / append pass.
// It reports whether the raw page was full (more data may exist) and whether
// the results were discarded because the stack was invalidated mid-flight.
func (c *Controller) fetchOnce(ctx context.Context) (fullPage, stale bool, err error) {
	c.mu.Lock()
	gen := c.generation
	viewer := c.viewer
	cursor := c.cursor
	rng := c.scoreRange
	c.mu.Unlock()

	liked, disliked, err := c.exclusionSets(ctx, viewer.ID)
	if err != nil {
		return false, false, fmt.Errorf("reading exclusion sets: %w", err)
	}

	page, err := c.profiles.QueryCandidates(ctx, Query{
		ViewerID:         viewer.ID,
		Gender:           viewer.GenderPreference,
		GenderPreference: viewer.Gender,
		MinAge:           viewer.MinAge,
		MaxAge:           viewer.MaxAge,
		AfterID:          cursor,
		Limit:            PageSize,
	})
	if err != nil {
		return false, false, fmt.Errorf("querying candidates: %w", err)
	}
	if len(page) == 0 {
		return false, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// The stack these results were meant for has been cleared.
		return false, true, nil
	}

	inStack := make(map[int]struct{}, len(c.stack))
	for _, p := range c.stack {
		inStack[p.ID] = struct{}{}
	}
	for _, p := range page {
		if len(c.stack) >= StackCapacity {
			break
		}
		if p.ID == viewer.ID {
			continue
		}
		if !rng.Contains(p.Score()) {
			continue
		}
		if _, seen := liked[p.ID]; seen {
			continue
		}
		if _, seen := disliked[p.ID]; seen {
			continue
		}
		if _, dup := inStack[p.ID]; dup {
			continue
		}
		c.stack = append(c.stack, p)
		inStack[p.ID] = struct{}{}
	}

	// The cursor advances over the raw page regardless of how many profiles
	// survived filtering, so a fully rejected page is never re-fetched.
	c.cursor = page[len(page)-1].ID
	return len(page) == PageSize, false, nil
}

// exclusionSets reads the liked and disliked sets. The two lookups are
// independent, so they run concurrently; both must finish before filtering.
func (c *Controller) exclusionSets(ctx context.Context, userID int) (liked, disliked map[int]struct{}, err error) {
	var likedErr, dislikedErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		liked, likedErr = c.interactions.LikedSet(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		disliked, dislikedErr = c.interactions.DislikedSet(ctx, userID)
	}()
	wg.Wait()
	if likedErr != nil {
		return nil, nil, likedErr
	}
	if dislikedErr != nil {
		return nil, nil, dislikedErr
	}
	return liked, disliked, nil
}

// Decide records the user's decision on the profile at the head of the stack
// and reports whether it produced a match. If the store write fails the stack
// is left untouched so the caller can retry the same decision. On success the
// head is popped and, when the stack drops below the low-water mark, a refill
// is kicked off in the background.
func (c *Controller) Decide(ctx context.Context, profileID int, outcome Outcome) (bool, error) {
	c.mu.Lock()
	if len(c.stack) == 0 || c.stack[0].ID != profileID {
		c.mu.Unlock()
		return false, ErrStaleDecision
	}
	me := c.viewer.ID
	c.mu.Unlock()

	var matched bool
	var err error
	switch outcome {
	case Accept:
		matched, err = c.accept(ctx, me, profileID)
	case Reject:
		err = c.reject(ctx, me, profileID)
	default:
		return false, fmt.Errorf("unknown outcome %d", outcome)
	}
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if len(c.stack) > 0 && c.stack[0].ID == profileID {
		c.stack = c.stack[1:]
	}
	low := len(c.stack) < LowWaterMark
	c.mu.Unlock()

	if low {
		refillCtx := context.WithoutCancel(ctx)
		go func() {
			_ = c.StartFeed(refillCtx)
		}()
	}
	return matched, nil
}

func (c *Controller) accept(ctx context.Context, me, target int) (bool, error) {
	if err := c.interactions.RecordLike(ctx, me, target); err != nil {
		return false, err
	}
	if err := c.interactions.IncrementLikeCounter(ctx, target); err != nil {
		return false, err
	}
	mutual, err := c.interactions.HasLiked(ctx, target, me)
	if err != nil {
		return false, err
	}
	if !mutual {
		return false, nil
	}
	// CreateMatch is idempotent on the sorted pair, so the race where both
	// users accept each other near-simultaneously yields one match record.
	if err := c.interactions.CreateMatch(ctx, me, target); err != nil {
		return false, err
	}
	if c.notifier != nil {
		c.notifier.NotifyMatch(me, target)
	}
	return true, nil
}

func (c *Controller) reject(ctx context.Context, me, target int) error {
	if err := c.interactions.RecordDislike(ctx, me, target); err != nil {
		return err
	}
	if err := c.interactions.IncrementDislikeCounter(ctx, target); err != nil {
		return err
	}
	had, err := c.interactions.HasLiked(ctx, target, me)
	if err != nil {
		return err
	}
	if had {
		// They had liked us earlier; drop it so it cannot surface later as a
		// stale match signal.
		return c.interactions.RevokeLike(ctx, target, me)
	}
	return nil
}

// SetScoreLevel switches the score filter band. This is a hard invalidation:
// stack and cursor are cleared synchronously, before any new fetch runs, and
// an in-flight fetch for the old band will find its generation stale and
// discard its results. A fresh fetch is kicked off in the background.
func (c *Controller) SetScoreLevel(ctx context.Context, level int) {
	c.mu.Lock()
	c.level = clampLevel(level)
	c.scoreRange = RangeForLevel(c.level)
	c.stack = nil
	c.cursor = 0
	c.generation++
	c.mu.Unlock()

	refillCtx := context.WithoutCancel(ctx)
	go func() {
		_ = c.StartFeed(refillCtx)
	}()
}

// Restart discards the stack and pagination state and fetches from the start,
// keeping the current score filter.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	c.stack = nil
	c.cursor = 0
	c.generation++
	c.mu.Unlock()
	return c.StartFeed(ctx)
}

// Head returns the profile currently presented to the user.
func (c *Controller) Head() (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stack) == 0 {
		return Profile{}, false
	}
	return c.stack[0], true
}

// Profiles returns a snapshot of the stack in presentation order.
func (c *Controller) Profiles() []Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Profile, len(c.stack))
	copy(out, c.stack)
	return out
}

// Len is the current stack size.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// Contains reports whether a profile is anywhere in the stack.
func (c *Controller) Contains(profileID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.stack {
		if p.ID == profileID {
			return true
		}
	}
	return false
}

// Level returns the selected score filter level.
func (c *Controller) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Viewer returns the user this feed was built for.
func (c *Controller) Viewer() Viewer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewer
}
