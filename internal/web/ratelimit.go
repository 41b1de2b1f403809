package web

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultChatPerMinute limits chat messages per session.
	DefaultChatPerMinute = 10

	// DefaultImagePerMinute limits image requests per session.
	DefaultImagePerMinute = 5

	// cleanupInterval is how often to check for stale sessions
	cleanupInterval = 5 * time.Minute

	// maxSessionAge is the maximum idle time before a session is cleaned up
	maxSessionAge = 30 * time.Minute
)

// tokenBucket implements a simple token bucket rate limiter.
type tokenBucket struct {
	capacity   int
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

// newTokenBucket creates a new token bucket with the specified capacity.
// Tokens refill at a rate of capacity per minute.
func newTokenBucket(capacity int, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: now,
		lastAccess: now,
	}
}

// allow checks if a request can proceed and consumes a token if so.
func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Minutes() * float64(tb.capacity))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	tb.lastAccess = now

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// rateLimiter tracks chat and image limits per session. A limit of zero
// disables limiting for that route.
type rateLimiter struct {
	mu             sync.Mutex
	chatPerMinute  int
	imagePerMinute int
	chat           map[string]*tokenBucket
	image          map[string]*tokenBucket
	now            func() time.Time
}

// newRateLimiter creates a new rate limiter.
func newRateLimiter(chatPerMinute, imagePerMinute int) *rateLimiter {
	return &rateLimiter{
		chatPerMinute:  chatPerMinute,
		imagePerMinute: imagePerMinute,
		chat:           make(map[string]*tokenBucket),
		image:          make(map[string]*tokenBucket),
		now:            time.Now,
	}
}

// allowChat checks if a chat request is allowed for the given session.
func (rl *rateLimiter) allowChat(sessionID string) bool {
	return rl.allow(rl.chat, rl.chatPerMinute, sessionID)
}

// allowImage checks if an image request is allowed for the given session.
func (rl *rateLimiter) allowImage(sessionID string) bool {
	return rl.allow(rl.image, rl.imagePerMinute, sessionID)
}

func (rl *rateLimiter) allow(buckets map[string]*tokenBucket, capacity int, sessionID string) bool {
	if capacity <= 0 {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	bucket, ok := buckets[sessionID]
	if !ok {
		bucket = newTokenBucket(capacity, now)
		buckets[sessionID] = bucket
	}
	rl.mu.Unlock()

	return bucket.allow(now)
}

// cleanupStale removes buckets that have been idle for longer than maxAge.
func (rl *rateLimiter) cleanupStale(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for _, buckets := range []map[string]*tokenBucket{rl.chat, rl.image} {
		for sessionID, bucket := range buckets {
			bucket.mu.Lock()
			stale := now.Sub(bucket.lastAccess) > maxAge
			bucket.mu.Unlock()
			if stale {
				delete(buckets, sessionID)
				removed++
			}
		}
	}
	return removed
}

// startCleanup starts a background goroutine that periodically removes
// stale buckets. The goroutine stops when the context is cancelled.
func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStale(maxSessionAge)
			case <-ctx.Done():
				return
			}
		}
	}()
}
