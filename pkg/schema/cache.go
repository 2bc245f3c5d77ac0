// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jllopis/kairos-console/pkg/resilience"
)

// Source fetches schemas, usually from the backend.
type Source interface {
	GetSchema(ctx context.Context, dataSource string) (*Schema, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, dataSource string) (*Schema, error)

func (f SourceFunc) GetSchema(ctx context.Context, dataSource string) (*Schema, error) {
	return f(ctx, dataSource)
}

// Cache keeps recently used schemas for a while. When an expired schema
// cannot be refetched the last good copy is served.
type Cache struct {
	source   Source
	entries  *expirable.LRU[string, *Schema]
	logger   *slog.Logger
	mu       sync.Mutex
	lastGood map[string]*resilience.LastGood[*Schema]
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a cache of at most size schemas kept for ttl.
func NewCache(source Source, size int, ttl time.Duration, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = 64
	}
	c := &Cache{
		source:   source,
		entries:  expirable.NewLRU[string, *Schema](size, nil, ttl),
		logger:   slog.Default().With("component", "schema"),
		lastGood: make(map[string]*resilience.LastGood[*Schema]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the schema of dataSource.
func (c *Cache) Get(ctx context.Context, dataSource string) (*Schema, error) {
	if s, ok := c.entries.Get(dataSource); ok {
		return s, nil
	}
	s, err := c.fallback(dataSource).Do(ctx, func(ctx context.Context) (*Schema, error) {
		s, err := c.source.GetSchema(ctx, dataSource)
		if err != nil {
			c.logger.Warn("schema fetch failed", "data_source", dataSource, "error", err)
			return nil, err
		}
		c.entries.Add(dataSource, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Invalidate drops the cached schema of dataSource. The last good copy is
// kept as a fallback.
func (c *Cache) Invalidate(dataSource string) {
	c.entries.Remove(dataSource)
}

// Len returns the number of live cache entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) fallback(dataSource string) *resilience.LastGood[*Schema] {
	c.mu.Lock()
	defer c.mu.Unlock()
	lg, ok := c.lastGood[dataSource]
	if !ok {
		lg = &resilience.LastGood[*Schema]{}
		c.lastGood[dataSource] = lg
	}
	return lg
}
