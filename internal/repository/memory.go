package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"detailbook/internal/models"
)

type memoryEntry struct {
	slots     []models.Slot
	expiresAt time.Time
}

type MemorySlotCache struct {
	mu          sync.Mutex
	days        map[string]map[string]memoryEntry
	generations map[string]int64
	now         func() time.Time
}

func NewMemorySlotCache() *MemorySlotCache {
	return &MemorySlotCache{
		days:        make(map[string]map[string]memoryEntry),
		generations: make(map[string]int64),
		now:         time.Now,
	}
}

func (c *MemorySlotCache) GetSlots(_ context.Context, date, key string) ([]models.Slot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.days[date][key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.days[date], key)
		return nil, false, nil
	}
	out := make([]models.Slot, len(entry.slots))
	copy(out, entry.slots)
	return out, true, nil
}

func (c *MemorySlotCache) Generation(_ context.Context, date string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strconv.FormatInt(c.generations[date], 10), nil
}

func (c *MemorySlotCache) SetSlots(_ context.Context, date, generation, key string, slots []models.Slot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strconv.FormatInt(c.generations[date], 10) != generation {
		return nil
	}

	day, ok := c.days[date]
	if !ok {
		day = make(map[string]memoryEntry)
		c.days[date] = day
	}
	entry := memoryEntry{slots: make([]models.Slot, len(slots))}
	copy(entry.slots, slots)
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	day[key] = entry
	return nil
}

func (c *MemorySlotCache) InvalidateDate(_ context.Context, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.days, date)
	c.generations[date]++
	return nil
}
