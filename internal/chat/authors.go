package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// AuthorCache resolves user ids to display identities for live deliveries
// ARCHITECTURAL DISCOVERY: Live rows arrive without the profile join, so each
// needs a lookup; concurrent lookups for one id share a single store call and
// resolved identities are kept for the cache's lifetime
type AuthorCache struct {
	lookup  interfaces.AuthorLookup
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	group singleflight.Group

	mu      sync.RWMutex
	authors map[string]types.Author
}

// NewAuthorCache creates an empty cache. timeout bounds each store lookup.
func NewAuthorCache(lookup interfaces.AuthorLookup, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *AuthorCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorCache{
		lookup:  lookup,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		authors: make(map[string]types.Author),
	}
}

// Cached returns a previously resolved author
func (c *AuthorCache) Cached(userID string) (types.Author, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.authors[userID]
	return a, ok
}

// Seed stores identities already known from a joined history read.
// Placeholders are never cached so a later lookup can still succeed.
func (c *AuthorCache) Seed(authors ...types.Author) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range authors {
		if a.Unresolved || a.UserID == "" {
			continue
		}
		c.authors[a.UserID] = a
	}
}

// Len reports how many identities are cached
func (c *AuthorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.authors)
}

// Resolve returns the author for userID. It never fails: when the lookup
// errors or times out the placeholder author is returned and a warning logged.
func (c *AuthorCache) Resolve(ctx context.Context, userID string) types.Author {
	if a, ok := c.Cached(userID); ok {
		return a
	}
	if c.lookup == nil {
		return types.PlaceholderAuthor(userID)
	}

	// TECHNICAL DISCOVERY: The shared lookup runs detached from any one caller
	// so a viewer switching class cannot fail the lookup for everyone else
	ch := c.group.DoChan(userID, func() (interface{}, error) {
		lookupCtx, cancel := c.lookupContext(ctx)
		defer cancel()

		author, err := c.lookup.GetAuthor(lookupCtx, userID)
		c.metrics.ObserveAuthorLookup(err)
		if err != nil {
			return nil, err
		}
		if author == nil {
			return nil, types.ErrUserNotFound
		}
		author.Unresolved = false
		c.Seed(*author)
		return *author, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("Author lookup failed, showing placeholder",
				zap.String("user_id", userID),
				zap.Error(res.Err))
			return types.PlaceholderAuthor(userID)
		}
		return res.Val.(types.Author)
	case <-ctx.Done():
		c.logger.Debug("Author lookup abandoned", zap.String("user_id", userID))
		return types.PlaceholderAuthor(userID)
	}
}

func (c *AuthorCache) lookupContext(parent context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(parent)
	if c.timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, c.timeout)
}
