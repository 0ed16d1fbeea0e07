package settingsstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dalemusser/formguard/internal/domain/models"
	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared reload, which outlives the caller that
// started it.
const loadTimeout = 5 * time.Second

// Backend is the persistence the cache sits in front of. *Store satisfies it.
type Backend interface {
	Get(ctx context.Context) (models.TurnstileSettings, error)
	Save(ctx context.Context, settings models.TurnstileSettings) error
}

// Cached serves settings from memory for up to ttl so the guard does not hit
// MongoDB on every form submission. Saves through the cache invalidate it
// immediately; saves made by other processes are picked up after ttl.
// Concurrent misses share one backend read, and no lock is held while it
// runs. It is safe for concurrent use.
type Cached struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group

	mu       sync.Mutex
	value    models.TurnstileSettings
	loadedAt time.Time
	valid    bool
	gen      uint64 // bumped by Invalidate

	now func() time.Time
}

// NewCached wraps backend with a ttl cache. A ttl <= 0 disables caching.
func NewCached(backend Backend, ttl time.Duration) *Cached {
	return &Cached{backend: backend, ttl: ttl, now: time.Now}
}

// Get returns the cached settings, reloading from the backend when stale.
// On a reload error the last known value is not served; the error is
// returned so callers can fail closed. A caller whose ctx ends while a
// reload is in flight returns ctx.Err() without waiting for it.
func (c *Cached) Get(ctx context.Context) (models.TurnstileSettings, error) {
	c.mu.Lock()
	if c.valid && c.ttl > 0 && c.now().Sub(c.loadedAt) < c.ttl {
		s := c.value
		c.mu.Unlock()
		return s, nil
	}
	gen := c.gen
	c.mu.Unlock()

	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.load(ctx, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.TurnstileSettings{}, res.Err
		}
		return res.Val.(models.TurnstileSettings), nil
	case <-ctx.Done():
		return models.TurnstileSettings{}, ctx.Err()
	}
}

// load reads the backend and stores the result unless an Invalidate
// happened since gen was taken.
func (c *Cached) load(ctx context.Context, gen uint64) (models.TurnstileSettings, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	s, err := c.backend.Get(lctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return s, err
	}
	if err != nil {
		c.valid = false
		return models.TurnstileSettings{}, err
	}
	c.value = s
	c.loadedAt = c.now()
	c.valid = true
	return s, nil
}

// Save writes through to the backend and drops the cached value.
func (c *Cached) Save(ctx context.Context, settings models.TurnstileSettings) error {
	if err := c.backend.Save(ctx, settings); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Invalidate forces the next Get to reload.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.gen++
	c.mu.Unlock()
}
