package tools

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/xaenox/taskmate/internal/models"
)

// CachedCatalog keeps recently looked-up definitions in memory. The catalog
// is seeded once and treated as read-only, so stale entries only live for ttl.
type CachedCatalog struct {
	next  Catalog
	cache *cache.Cache
}

func NewCachedCatalog(next Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedCatalog) GetToolDefinition(ctx context.Context, name string) (*models.ToolDefinition, error) {
	if v, ok := c.cache.Get(name); ok {
		return v.(*models.ToolDefinition), nil
	}

	def, err := c.next.GetToolDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(name, def)
	return def, nil
}

// ListToolDefinitions always reads through; it backs the listing endpoint only.
func (c *CachedCatalog) ListToolDefinitions(ctx context.Context) ([]*models.ToolDefinition, error) {
	return c.next.ListToolDefinitions(ctx)
}
