package ics

import (
	"sort"
	"sync"
	"time"

	"gatherbot/internal/model"
)

// Catalog holds the last decoded set of committed events per guild. The
// maintenance catch-up pass writes it and the web feed reads it.
type Catalog struct {
	mu        sync.RWMutex
	byGuild   map[string][]*model.EventDraft
	updatedAt time.Time
}

func NewCatalog() *Catalog {
	return &Catalog{byGuild: make(map[string][]*model.EventDraft)}
}

// Update replaces the snapshot for one guild.
func (c *Catalog) Update(guildID string, drafts []*model.EventDraft, at time.Time) {
	cp := make([]*model.EventDraft, 0, len(drafts))
	for _, d := range drafts {
		cp = append(cp, d.Clone())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byGuild[guildID] = cp
	if at.After(c.updatedAt) {
		c.updatedAt = at
	}
}

// Drafts returns copies of every guild's events ordered by start time.
func (c *Catalog) Drafts() []*model.EventDraft {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*model.EventDraft
	for _, ds := range c.byGuild {
		for _, d := range ds {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// UpdatedAt is the time of the most recent Update, zero before the first.
func (c *Catalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
