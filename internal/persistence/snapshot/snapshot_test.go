package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"warfront.gg/internal/persistence/store"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

func TestSnapshot_WriteReadState(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	st := store.State{
		Territories: []modelpkg.TerritoryChunk{
			{ID: 1, Coord: modelpkg.ChunkCoord{World: "overworld", X: -1, Z: 4}, ClanID: "A", ClaimedAt: at},
		},
		Wars: []modelpkg.War{
			{ID: 2, Aggressor: "B", Defender: "A", StartedAt: at, WindowEnds: at.Add(24 * time.Hour), Status: modelpkg.WarSiegeActive},
		},
		Sieges: []modelpkg.Siege{
			{ID: 3, WarID: 2, TerritoryID: 1, Coord: modelpkg.ChunkCoord{World: "overworld", X: -1, Z: 4},
				Aggressor: "B", Defender: "A",
				Altar:     modelpkg.BlockPos{World: "overworld", Vec3i: modelpkg.Vec3i{X: -8, Y: 70, Z: 72}},
				StartedAt: at, EndsAt: at.Add(20 * time.Minute), Remaining: 615.5, AttackerHeld: 12, DefenderHeld: 3,
				Status: modelpkg.SiegeActive},
		},
		Banks: []modelpkg.ClanBank{{ClanID: "B", Balance: decimal.RequireFromString("1000.10"), UpdatedAt: at}},
	}

	path := filepath.Join(t.TempDir(), "snaps", "territory.zst")
	if err := WriteSnapshot(path, FromState("overworld", st, at)); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.World != "overworld" || h.Territories != 1 || h.Sieges != 1 || !h.TakenAt.Equal(at) {
		t.Fatalf("header=%+v", h)
	}

	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := snap.State()
	if len(got.Sieges) != 1 {
		t.Fatalf("sieges=%d", len(got.Sieges))
	}
	sg := got.Sieges[0]
	if sg.Altar.World != "overworld" || sg.Altar.Z != 72 || sg.Remaining != 615.5 || sg.Coord.X != -1 {
		t.Fatalf("siege=%+v", sg)
	}
	if got.Wars[0].Status != modelpkg.WarSiegeActive {
		t.Fatalf("war status=%s", got.Wars[0].Status)
	}
	if !got.Banks[0].Balance.Equal(decimal.RequireFromString("1000.10")) {
		t.Fatalf("balance=%s", got.Banks[0].Balance)
	}
}

func TestSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v9.zst")
	snap := FromState("overworld", store.State{}, time.Now())
	snap.Header.Version = 9
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
