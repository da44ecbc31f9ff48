package redis

import (
	"context"
	"time"
)

// Window is the state of one fixed-window counter after a hit.
type Window struct {
	Allowed bool
	Count   int64
	// RetryAfter is how long until the window resets; only set when !Allowed.
	RetryAfter time.Duration
}

// Hit counts one request against scope. The first hit in a window starts the
// TTL; EXPIRE NX is sent on every hit so a crash between INCR and EXPIRE can
// not leave a counter that never resets.
func (c *Client) Hit(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if c.store == nil {
		return Window{}, errNotInitialized
	}
	key := c.RateLimitKey(scope)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return Window{}, err
	}
	if window > 0 {
		if err := c.store.ExpireNX(ctx, key, window).Err(); err != nil {
			return Window{}, err
		}
	}
	w := Window{Allowed: count <= limit, Count: count}
	if w.Allowed {
		return w, nil
	}
	ttl, err := c.store.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}
	w.RetryAfter = ttl
	return w, nil
}
