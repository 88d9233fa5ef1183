package pageclient

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"runwayscraper/pkg/errors"
)

// CachingClient memoizes listing fetches so units sharing a parent page do
// not refetch it. Galleries are not cached: each designer's gallery is
// fetched exactly once per unit, and the entries would dwarf the listings.
type CachingClient struct {
	inner    PageClient
	cache    *lru.Cache[string, interface{}]
	observer FetchObserver
}

// NewCachingClient wraps inner with an LRU of the given size.
func NewCachingClient(inner PageClient, size int) (*CachingClient, error) {
	cache, err := lru.New[string, interface{}](size)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create page cache")
	}
	return &CachingClient{inner: inner, cache: cache}, nil
}

// FetchSeasons returns the cached season list when present.
func (c *CachingClient) FetchSeasons(ctx context.Context) ([]SeasonRef, error) {
	if v, ok := c.cache.Get("seasons"); ok {
		c.observer.observe("cache", "hit")
		return v.([]SeasonRef), nil
	}
	c.observer.observe("cache", "miss")
	seasons, err := c.inner.FetchSeasons(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add("seasons", seasons)
	return seasons, nil
}

// FetchDesigners returns the cached designer list for the season when present.
func (c *CachingClient) FetchDesigners(ctx context.Context, seasonURL string) ([]DesignerRef, error) {
	key := "designers:" + seasonURL
	if v, ok := c.cache.Get(key); ok {
		c.observer.observe("cache", "hit")
		return v.([]DesignerRef), nil
	}
	c.observer.observe("cache", "miss")
	designers, err := c.inner.FetchDesigners(ctx, seasonURL)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, designers)
	return designers, nil
}

// FetchLooks always delegates.
func (c *CachingClient) FetchLooks(ctx context.Context, designerURL string) (*Gallery, error) {
	return c.inner.FetchLooks(ctx, designerURL)
}

// Close purges the cache and closes the wrapped client.
func (c *CachingClient) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
