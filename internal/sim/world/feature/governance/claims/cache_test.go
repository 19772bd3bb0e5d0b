package claims

import (
	"sync"
	"sync/atomic"
	"testing"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

func chunk(id int64, x, z int, clan string) modelpkg.TerritoryChunk {
	return modelpkg.TerritoryChunk{ID: id, Coord: modelpkg.ChunkCoord{World: "w", X: x, Z: z}, ClanID: clan}
}

func TestCachePutRemoveAndIndex(t *testing.T) {
	c := NewCache()
	c.Put(chunk(1, 0, 0, "A"))
	c.Put(chunk(2, 1, 0, "A"))
	c.Put(chunk(3, 5, 5, "B"))

	if !c.IsClaimed(modelpkg.ChunkCoord{World: "w", X: 1, Z: 0}) {
		t.Fatalf("expected chunk claimed")
	}
	if owner, ok := c.OwnerOf(modelpkg.ChunkCoord{World: "w", X: 5, Z: 5}); !ok || owner != "B" {
		t.Fatalf("owner=%q ok=%v", owner, ok)
	}
	if got := c.CountOf("A"); got != 2 {
		t.Fatalf("CountOf(A)=%d want 2", got)
	}

	// Transfer replaces the owner and moves the index entry.
	c.Put(chunk(2, 1, 0, "B"))
	if got := c.CountOf("A"); got != 1 {
		t.Fatalf("CountOf(A)=%d want 1 after transfer", got)
	}
	if got := c.CountOf("B"); got != 2 {
		t.Fatalf("CountOf(B)=%d want 2 after transfer", got)
	}

	if _, ok := c.Remove(modelpkg.ChunkCoord{World: "w", X: 0, Z: 0}); !ok {
		t.Fatalf("expected remove ok")
	}
	if _, ok := c.Remove(modelpkg.ChunkCoord{World: "w", X: 0, Z: 0}); ok {
		t.Fatalf("expected second remove to miss")
	}
	if ids := c.Clans(); len(ids) != 1 || ids[0] != "B" {
		t.Fatalf("Clans()=%v", ids)
	}
	ts := c.TerritoriesOf("B")
	if len(ts) != 2 || ts[0].Coord.X != 1 || ts[1].Coord.X != 5 {
		t.Fatalf("unexpected order: %+v", ts)
	}
}

func TestCacheReservations(t *testing.T) {
	c := NewCache()
	coord := modelpkg.ChunkCoord{World: "w", X: 3, Z: 4}
	if !c.Reserve(coord, "A") {
		t.Fatalf("first reserve should win")
	}
	if c.Reserve(coord, "B") {
		t.Fatalf("second reserve should lose")
	}
	if c.IsClaimed(coord) {
		t.Fatalf("a reservation is not ownership")
	}
	if got := c.PendingClaimsOf("A"); got != 1 {
		t.Fatalf("PendingClaimsOf=%d", got)
	}
	c.Release(coord)
	if c.Reserved(coord) {
		t.Fatalf("expected released")
	}

	c.Put(modelpkg.TerritoryChunk{ID: 9, Coord: coord, ClanID: "A"})
	if c.Reserve(coord, "B") {
		t.Fatalf("owned chunk cannot be reserved")
	}
	if c.ReserveRemoval(coord, "B") {
		t.Fatalf("non-owner cannot reserve removal")
	}
	if !c.ReserveRemoval(coord, "A") {
		t.Fatalf("owner removal reservation failed")
	}
	if got := c.PendingClaimsOf("A"); got != 0 {
		t.Fatalf("removals must not count as pending claims, got %d", got)
	}
}

func TestCacheConcurrentReserveHasOneWinner(t *testing.T) {
	c := NewCache()
	coord := modelpkg.ChunkCoord{World: "w", X: 7, Z: 7}
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c.Reserve(coord, "clan") {
				wins.Add(1)
			}
			_ = c.IsClaimed(coord)
			_ = c.CountOf("clan")
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins=%d want 1", wins.Load())
	}
}
