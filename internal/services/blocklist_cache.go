package services

import (
	"fmt"
	"sync"

	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// BlocklistCache is a concurrent-safe, lock-free-on-the-hot-path cache
// over the blocklist, write-through to the repository so a restart never
// loses an entry. It is hydrated fully from the store at startup.
type BlocklistCache struct {
	repo repository.BlocklistRepository
	set  sync.Map // address -> reason (string)
}

func NewBlocklistCache(repo repository.BlocklistRepository) *BlocklistCache {
	return &BlocklistCache{repo: repo}
}

// Hydrate loads every persisted entry into memory. Call once at startup
// before serving traffic.
func (c *BlocklistCache) Hydrate() error {
	entries, err := c.repo.List()
	if err != nil {
		return fmt.Errorf("hydrate blocklist cache: %w", err)
	}
	for _, e := range entries {
		c.set.Store(e.Address, e.Reason)
	}
	return nil
}

// Contains is the hot-path check: a lock-free sync.Map read.
func (c *BlocklistCache) Contains(address string) bool {
	_, ok := c.set.Load(address)
	return ok
}

// Add persists the entry first, then updates the in-memory view, per the
// write-through ordering required for crash safety.
func (c *BlocklistCache) Add(address, reason string) error {
	if err := c.repo.Add(address, reason); err != nil {
		return fmt.Errorf("add to blocklist: %w", err)
	}
	c.set.Store(address, reason)
	return nil
}

func (c *BlocklistCache) Remove(address string) error {
	if err := c.repo.Remove(address); err != nil {
		return fmt.Errorf("remove from blocklist: %w", err)
	}
	c.set.Delete(address)
	return nil
}

func (c *BlocklistCache) List() []models.BlocklistEntry {
	var out []models.BlocklistEntry
	c.set.Range(func(key, value interface{}) bool {
		out = append(out, models.BlocklistEntry{Address: key.(string), Reason: value.(string)})
		return true
	})
	return out
}
