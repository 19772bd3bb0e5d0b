package claims

import (
	"sort"
	"sync"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

type reservation struct {
	clanID  string
	removal bool
}

// Cache mirrors persisted chunk ownership. It is written only after a confirmed
// storage write; Reserve/ReserveRemoval guard the window while a write is in flight.
type Cache struct {
	mu      sync.RWMutex
	owned   map[modelpkg.ChunkCoord]modelpkg.TerritoryChunk
	byClan  map[string]map[modelpkg.ChunkCoord]struct{}
	pending map[modelpkg.ChunkCoord]reservation
}

func NewCache() *Cache {
	return &Cache{
		owned:   map[modelpkg.ChunkCoord]modelpkg.TerritoryChunk{},
		byClan:  map[string]map[modelpkg.ChunkCoord]struct{}{},
		pending: map[modelpkg.ChunkCoord]reservation{},
	}
}

// Load replaces the cache contents with a bulk read from storage.
func (c *Cache) Load(chunks []modelpkg.TerritoryChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owned = make(map[modelpkg.ChunkCoord]modelpkg.TerritoryChunk, len(chunks))
	c.byClan = map[string]map[modelpkg.ChunkCoord]struct{}{}
	c.pending = map[modelpkg.ChunkCoord]reservation{}
	for _, t := range chunks {
		c.putLocked(t)
	}
}

func (c *Cache) IsClaimed(coord modelpkg.ChunkCoord) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.owned[coord]
	return ok
}

func (c *Cache) OwnerOf(coord modelpkg.ChunkCoord) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.owned[coord]
	return t.ClanID, ok
}

func (c *Cache) Get(coord modelpkg.ChunkCoord) (modelpkg.TerritoryChunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.owned[coord]
	return t, ok
}

// Put records t as owned, replacing any previous owner of the same chunk.
func (c *Cache) Put(t modelpkg.TerritoryChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(t)
}

func (c *Cache) putLocked(t modelpkg.TerritoryChunk) {
	if prev, ok := c.owned[t.Coord]; ok {
		c.unindexLocked(prev)
	}
	c.owned[t.Coord] = t
	set := c.byClan[t.ClanID]
	if set == nil {
		set = map[modelpkg.ChunkCoord]struct{}{}
		c.byClan[t.ClanID] = set
	}
	set[t.Coord] = struct{}{}
}

func (c *Cache) Remove(coord modelpkg.ChunkCoord) (modelpkg.TerritoryChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.owned[coord]
	if !ok {
		return modelpkg.TerritoryChunk{}, false
	}
	delete(c.owned, coord)
	c.unindexLocked(t)
	return t, true
}

func (c *Cache) unindexLocked(t modelpkg.TerritoryChunk) {
	set := c.byClan[t.ClanID]
	if set == nil {
		return
	}
	delete(set, t.Coord)
	if len(set) == 0 {
		delete(c.byClan, t.ClanID)
	}
}

// Reserve marks an unowned chunk as being claimed by clanID. It fails if the chunk
// is owned or already reserved.
func (c *Cache) Reserve(coord modelpkg.ChunkCoord, clanID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owned[coord]; ok {
		return false
	}
	if _, ok := c.pending[coord]; ok {
		return false
	}
	c.pending[coord] = reservation{clanID: clanID}
	return true
}

// ReserveRemoval marks a chunk owned by clanID as being unclaimed.
func (c *Cache) ReserveRemoval(coord modelpkg.ChunkCoord, clanID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.owned[coord]
	if !ok || t.ClanID != clanID {
		return false
	}
	if _, ok := c.pending[coord]; ok {
		return false
	}
	c.pending[coord] = reservation{clanID: clanID, removal: true}
	return true
}

func (c *Cache) Release(coord modelpkg.ChunkCoord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, coord)
}

// Reserved reports whether a claim or unclaim is in flight for coord.
func (c *Cache) Reserved(coord modelpkg.ChunkCoord) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pending[coord]
	return ok
}

func (c *Cache) CountOf(clanID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byClan[clanID])
}

// PendingClaimsOf counts in-flight claims (not removals) for clanID.
func (c *Cache) PendingClaimsOf(clanID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.pending {
		if r.clanID == clanID && !r.removal {
			n++
		}
	}
	return n
}

// TerritoriesOf returns the chunks owned by clanID in a stable order.
func (c *Cache) TerritoriesOf(clanID string) []modelpkg.TerritoryChunk {
	c.mu.RLock()
	out := make([]modelpkg.TerritoryChunk, 0, len(c.byClan[clanID]))
	for coord := range c.byClan[clanID] {
		out = append(out, c.owned[coord])
	}
	c.mu.RUnlock()
	SortChunks(out)
	return out
}

// Clans returns the ids of clans holding at least one chunk, sorted.
func (c *Cache) Clans() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.byClan))
	for id := range c.byClan {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.owned)
}

func (c *Cache) All() []modelpkg.TerritoryChunk {
	c.mu.RLock()
	out := make([]modelpkg.TerritoryChunk, 0, len(c.owned))
	for _, t := range c.owned {
		out = append(out, t)
	}
	c.mu.RUnlock()
	SortChunks(out)
	return out
}

func SortChunks(ts []modelpkg.TerritoryChunk) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i].Coord, ts[j].Coord
		if a.World != b.World {
			return a.World < b.World
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
}
