package subscription

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

/* Cache decorates a Reader with a short-lived LRU
 * Subscription data is read-mostly, a stale entry lives at most ttl
 */
type Cache struct {
	Reader
	byID    *expirable.LRU[string, Subscription]
	byEvent *expirable.LRU[string, []Subscription]
}

// NewCache wraps r, caching up to size entries per lookup kind for ttl
func NewCache(r Reader, size int, ttl time.Duration) *Cache {
	return &Cache{
		Reader:  r,
		byID:    expirable.NewLRU[string, Subscription](size, nil, ttl),
		byEvent: expirable.NewLRU[string, []Subscription](size, nil, ttl),
	}
}

func (c *Cache) Get(ctx context.Context, id string) (Subscription, error) {
	if sub, ok := c.byID.Get(id); ok {
		return sub, nil
	}
	sub, err := c.Reader.Get(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	c.byID.Add(id, sub)
	return sub, nil
}

func (c *Cache) FindActiveByEvent(ctx context.Context, eventType string, at time.Time) ([]Subscription, error) {
	if subs, ok := c.byEvent.Get(eventType); ok {
		return subs, nil
	}
	subs, err := c.Reader.FindActiveByEvent(ctx, eventType, at)
	if err != nil {
		return nil, err
	}
	c.byEvent.Add(eventType, subs)
	return subs, nil
}
