package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asksql/asksql/internal/observability"
)

// Cache holds the process-wide description. Readers always see a complete
// snapshot; Refresh swaps it in one step.
type Cache struct {
	loader Loader
	logger *slog.Logger

	mu        sync.RWMutex
	current   Description
	loadedAt  time.Time
	lastError error
}

func NewCache(loader Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{loader: loader, logger: logger}
}

// NewStaticCache returns a cache that always serves desc.
func NewStaticCache(desc Description) *Cache {
	return &Cache{current: desc, loadedAt: time.Now().UTC(), logger: slog.Default()}
}

func (c *Cache) Current() Description {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *Cache) Refresh(ctx context.Context) error {
	if c.loader == nil {
		return nil
	}
	desc, err := c.loader.Load(ctx)
	if err == nil {
		err = desc.Validate()
	}
	observability.ObserveSchemaRefresh(err, len(desc.Tables))
	if err != nil {
		c.mu.Lock()
		c.lastError = err
		c.mu.Unlock()
		return fmt.Errorf("refresh schema: %w", err)
	}

	c.mu.Lock()
	c.current = desc
	c.loadedAt = time.Now().UTC()
	c.lastError = nil
	c.mu.Unlock()
	return nil
}

// Run refreshes the cache every interval until ctx is done. A failed refresh
// keeps serving the previous description.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.WarnContext(ctx, "schema_refresh_failed", slog.String("error", err.Error()))
				continue
			}
			c.logger.DebugContext(ctx, "schema_refreshed", slog.Int("tables", len(c.Current().Tables)))
		}
	}
}

func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}
