package directory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/events"
)

// CachedSubscribers puts a short-TTL redis cache in front of the
// Subscriber Directory to absorb interim-update bursts. Entries are kept in
// redis for the stale window; freshness is judged by the snapshot's own
// TakenAt, so an unreachable directory can still be served from a stale
// entry for up to staleMax.
type CachedSubscribers struct {
	backend  Subscribers
	ttl      time.Duration
	staleMax time.Duration
}

func NewCachedSubscribers(backend Subscribers, ttl, staleMax time.Duration, bus *events.Bus) *CachedSubscribers {
	if ttl <= 0 {
		ttl = time.Second
	}
	if staleMax < ttl {
		staleMax = 30 * time.Second
	}
	c := &CachedSubscribers{backend: backend, ttl: ttl, staleMax: staleMax}

	// Entitlement changes must be visible on the next accounting event,
	// not a cache TTL later.
	bus.OnServicePicked(func(e events.ServicePicked) { c.Invalidate(e.SubscriberID) })
	bus.OnServiceStopped(func(e events.ServiceStopped) { c.Invalidate(e.SubscriberID) })
	bus.OnServiceBatchStopped(func(e events.ServiceBatchStopped) {
		for _, id := range e.SubscriberIDs {
			c.Invalidate(id)
		}
	})

	return c
}

func cacheKey(subscriberID uint) string {
	return fmt.Sprintf("%s%d", database.CacheKeySnapshot, subscriberID)
}

func (c *CachedSubscribers) ServiceSnapshot(ctx context.Context, subscriberID uint) (*Snapshot, error) {
	var cached Snapshot
	haveCached := database.CacheGet(cacheKey(subscriberID), &cached) == nil

	if haveCached && time.Since(cached.TakenAt) <= c.ttl {
		return &cached, nil
	}

	snap, err := c.backend.ServiceSnapshot(ctx, subscriberID)
	if err != nil {
		if haveCached && time.Since(cached.TakenAt) <= c.staleMax {
			log.Printf("Directory: serving stale snapshot for subscriber %d: %v", subscriberID, err)
			return &cached, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if snap == nil {
		return nil, nil
	}

	if err := database.CacheSet(cacheKey(subscriberID), snap, c.staleMax); err != nil {
		log.Printf("Directory: failed to cache snapshot for subscriber %d: %v", subscriberID, err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for a subscriber.
func (c *CachedSubscribers) Invalidate(subscriberID uint) {
	database.CacheDelete(cacheKey(subscriberID))
}
