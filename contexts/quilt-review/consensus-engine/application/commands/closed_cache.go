package commands

import (
	lru "github.com/hashicorp/golang-lru"
)

const defaultClosedBlockCacheSize = 8192

// ClosedBlockCache remembers blocks that already reached consensus so the
// submission path can skip the engine without a block read. A nil cache is
// valid and always misses.
type ClosedBlockCache struct {
	cache *lru.Cache
}

func NewClosedBlockCache(size int) (*ClosedBlockCache, error) {
	if size <= 0 {
		size = defaultClosedBlockCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ClosedBlockCache{cache: cache}, nil
}

func (c *ClosedBlockCache) Contains(blockID int64) bool {
	if c == nil {
		return false
	}
	return c.cache.Contains(blockID)
}

func (c *ClosedBlockCache) Add(blockID int64) {
	if c == nil {
		return
	}
	c.cache.Add(blockID, struct{}{})
}

func (c *ClosedBlockCache) Remove(blockID int64) {
	if c == nil {
		return
	}
	c.cache.Remove(blockID)
}
