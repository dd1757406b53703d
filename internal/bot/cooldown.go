package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldowns rate limits code requests per user so the mailer cannot be
// abused to spam an address.
type cooldowns struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
}

func newCooldowns(every time.Duration, burst int) *cooldowns {
	return &cooldowns{
		limiters: map[string]*rate.Limiter{},
		every:    every,
		burst:    burst,
	}
}

func (c *cooldowns) Allow(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.every), c.burst)
		c.limiters[userID] = limiter
	}
	return limiter.Allow()
}
