package datastore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/vidguard/internal/moderation"
)

// CachedStore serves terminal jobs from memory. Terminal jobs never change,
// so the only invalidation needed is on delete.
type CachedStore struct {
	Interface
	cache *cache.Cache
	// deletes counts completed deletes. A read that overlapped one does not
	// populate the cache.
	deletes atomic.Uint64
}

// NewCachedStore wraps store with a read cache of terminal jobs.
func NewCachedStore(store Interface, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Interface: store,
		cache:     cache.New(ttl, ttl*2),
	}
}

// Unwrap returns the wrapped store.
func (c *CachedStore) Unwrap() Interface { return c.Interface }

func (c *CachedStore) Get(ctx context.Context, id string) (*moderation.Job, error) {
	if cached, found := c.cache.Get(id); found {
		return cached.(*moderation.Job).Clone(), nil
	}
	generation := c.deletes.Load()
	job, err := c.Interface.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() && c.deletes.Load() == generation {
		c.cache.Set(id, job.Clone(), cache.DefaultExpiration)
	}
	return job, nil
}

func (c *CachedStore) Save(ctx context.Context, job *moderation.Job) error {
	if err := c.Interface.Save(ctx, job); err != nil {
		c.cache.Delete(job.ID)
		return err
	}
	if job.State.Terminal() {
		c.cache.Set(job.ID, job.Clone(), cache.DefaultExpiration)
	}
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	err := c.Interface.Delete(ctx, id)
	c.deletes.Add(1)
	c.cache.Delete(id)
	return err
}

// CachedItems returns the number of cached jobs.
func (c *CachedStore) CachedItems() int {
	return c.cache.ItemCount()
}

func (c *CachedStore) Close() error {
	c.cache.Flush()
	return c.Interface.Close()
}
