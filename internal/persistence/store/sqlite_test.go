package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// chanPoster collects posted callbacks so the test goroutine plays the world goroutine.
type chanPoster chan func()

func (p chanPoster) Post(fn func()) { p <- fn }

func (p chanPoster) next(t *testing.T) {
	t.Helper()
	select {
	case fn := <-p:
		fn()
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for store callback")
	}
}

func openTestSQLite(t *testing.T) (*SQLite, chanPoster) {
	t.Helper()
	post := make(chanPoster, 64)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "warfront.sqlite"), post, Options{Workers: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, post
}

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestSQLite_TerritoryUniqueness(t *testing.T) {
	s, post := openTestSQLite(t)
	coord := modelpkg.ChunkCoord{World: "overworld", X: 4, Z: -2}

	var firstID int64
	s.InsertTerritory(modelpkg.TerritoryChunk{Coord: coord, ClanID: "A", ClaimedAt: t0}, Debit{}, func(id int64, bank *modelpkg.ClanBank, err error) {
		require.NoError(t, err)
		assert.Nil(t, bank)
		firstID = id
	})
	post.next(t)
	require.NotZero(t, firstID)

	s.InsertTerritory(modelpkg.TerritoryChunk{Coord: coord, ClanID: "B", ClaimedAt: t0}, Debit{}, func(id int64, bank *modelpkg.ClanBank, err error) {
		assert.ErrorIs(t, err, ErrConflict)
	})
	post.next(t)

	s.DeleteTerritory(firstID, "B", func(err error) { assert.ErrorIs(t, err, ErrNotFound) })
	post.next(t)
	s.DeleteTerritory(firstID, "A", func(err error) { assert.NoError(t, err) })
	post.next(t)

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Territories)
}

func TestSQLite_BankDebitIsAllOrNothing(t *testing.T) {
	s, post := openTestSQLite(t)

	s.AdjustBank(BankChange{ClanID: "B", Delta: decimal.NewFromInt(6000), At: t0}, func(b modelpkg.ClanBank, err error) {
		require.NoError(t, err)
		assert.True(t, b.Balance.Equal(decimal.NewFromInt(6000)))
	})
	post.next(t)

	war := modelpkg.War{Aggressor: "B", Defender: "A", StartedAt: t0, WindowEnds: t0.Add(24 * time.Hour), Status: modelpkg.WarDeclared}
	s.CreateWar(war, Debit{ClanID: "B", Amount: decimal.NewFromInt(5000)}, func(id int64, bank *modelpkg.ClanBank, err error) {
		require.NoError(t, err)
		require.NotNil(t, bank)
		assert.True(t, bank.Balance.Equal(decimal.NewFromInt(1000)), "balance=%s", bank.Balance)
	})
	post.next(t)

	// A second declaration cannot be afforded and must not leave a war row behind.
	s.CreateWar(war, Debit{ClanID: "B", Amount: decimal.NewFromInt(5000)}, func(id int64, bank *modelpkg.ClanBank, err error) {
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
	post.next(t)

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Wars, 1)
	require.Len(t, st.Banks, 1)
	assert.True(t, st.Banks[0].Balance.Equal(decimal.NewFromInt(1000)))
}

func TestSQLite_SiegeLifecycle(t *testing.T) {
	s, post := openTestSQLite(t)
	coord := modelpkg.ChunkCoord{World: "overworld", X: 1, Z: 1}

	var territoryID, warID, siegeID int64
	s.InsertTerritory(modelpkg.TerritoryChunk{Coord: coord, ClanID: "A", ClaimedAt: t0}, Debit{}, func(id int64, _ *modelpkg.ClanBank, err error) {
		require.NoError(t, err)
		territoryID = id
	})
	post.next(t)
	s.CreateWar(modelpkg.War{Aggressor: "B", Defender: "A", StartedAt: t0, WindowEnds: t0.Add(time.Hour), Status: modelpkg.WarDeclared}, Debit{},
		func(id int64, _ *modelpkg.ClanBank, err error) {
			require.NoError(t, err)
			warID = id
		})
	post.next(t)

	sg := modelpkg.Siege{
		WarID: warID, TerritoryID: territoryID, Coord: coord, Aggressor: "B", Defender: "A",
		Altar:     modelpkg.BlockPos{World: "overworld", Vec3i: modelpkg.Vec3i{X: 20, Y: 64, Z: 20}},
		StartedAt: t0, EndsAt: t0.Add(20 * time.Minute), Remaining: 1200,
	}
	s.CreateSiege(sg, func(id int64, err error) {
		require.NoError(t, err)
		siegeID = id
	})
	post.next(t)

	// The war already hosts a siege.
	s.CreateSiege(sg, func(id int64, err error) { assert.ErrorIs(t, err, ErrConflict) })
	post.next(t)

	s.CheckpointSiege(SiegeCheckpoint{
		SiegeID: siegeID, Remaining: 600, AttackerHeld: 300,
		EndsAt: t0.Add(25 * time.Minute), Paused: 5 * time.Minute, At: t0.Add(15 * time.Minute),
	}, func(err error) { assert.NoError(t, err) })
	post.next(t)

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Sieges, 1)
	assert.Equal(t, 600.0, st.Sieges[0].Remaining)
	assert.True(t, st.Sieges[0].EndsAt.Equal(t0.Add(25*time.Minute)))
	assert.Equal(t, 5*time.Minute, st.Sieges[0].Paused)
	assert.True(t, st.Sieges[0].CheckpointAt.Equal(t0.Add(15*time.Minute)))
	assert.Equal(t, "overworld", st.Sieges[0].Altar.World)
	require.Len(t, st.Wars, 1)
	assert.Equal(t, modelpkg.WarSiegeActive, st.Wars[0].Status)

	s.ResolveSiege(SiegeResolution{
		SiegeID: siegeID, WarID: warID, Status: modelpkg.SiegeAttackerWin, WarStatus: modelpkg.WarCompleted,
		Transfer: &Transfer{TerritoryID: territoryID, ClanID: "B", At: t0.Add(10 * time.Minute)},
		At:       t0.Add(10 * time.Minute),
	}, func(err error) { assert.NoError(t, err) })
	post.next(t)

	s.ResolveSiege(SiegeResolution{SiegeID: siegeID, WarID: warID, Status: modelpkg.SiegeDefenderWin, WarStatus: modelpkg.WarCompleted, At: t0},
		func(err error) { assert.ErrorIs(t, err, ErrConflict) })
	post.next(t)

	st, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Sieges)
	assert.Empty(t, st.Wars)
	require.Len(t, st.Territories, 1)
	assert.Equal(t, "B", st.Territories[0].ClanID)
}

func TestSQLite_ClosedRejectsOps(t *testing.T) {
	s, post := openTestSQLite(t)
	require.NoError(t, s.Close())
	s.AdjustBank(BankChange{ClanID: "A", Delta: decimal.NewFromInt(1), At: t0}, func(_ modelpkg.ClanBank, err error) {
		assert.ErrorIs(t, err, ErrClosed)
	})
	post.next(t)
}

func TestSQLite_ImportKeepsIDsAndRefusesMerge(t *testing.T) {
	s, _ := openTestSQLite(t)
	ctx := context.Background()
	st := State{
		Territories: []modelpkg.TerritoryChunk{
			{ID: 7, Coord: modelpkg.ChunkCoord{World: "overworld", X: 1, Z: 2}, ClanID: "A", ClaimedAt: t0},
		},
		Wars: []modelpkg.War{
			{ID: 3, Aggressor: "B", Defender: "A", StartedAt: t0, WindowEnds: t0.Add(24 * time.Hour), Status: modelpkg.WarSiegeActive},
		},
		Sieges: []modelpkg.Siege{
			{ID: 5, WarID: 3, TerritoryID: 7, Coord: modelpkg.ChunkCoord{World: "overworld", X: 1, Z: 2}, Aggressor: "B", Defender: "A",
				Altar: modelpkg.BlockPos{World: "overworld", Vec3i: modelpkg.Vec3i{X: 20, Y: 64, Z: 40}},
				StartedAt: t0, EndsAt: t0.Add(20 * time.Minute), Remaining: 900, Status: modelpkg.SiegeActive},
		},
		Banks: []modelpkg.ClanBank{{ClanID: "B", Balance: decimal.RequireFromString("1000.25"), UpdatedAt: t0}},
	}
	require.NoError(t, s.Import(ctx, st))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Territories, 1)
	assert.Equal(t, int64(7), got.Territories[0].ID)
	require.Len(t, got.Sieges, 1)
	assert.Equal(t, 900.0, got.Sieges[0].Remaining)
	assert.Equal(t, 20, got.Sieges[0].Altar.X)
	require.Len(t, got.Banks, 1)
	assert.True(t, got.Banks[0].Balance.Equal(decimal.RequireFromString("1000.25")))

	assert.ErrorIs(t, s.Import(ctx, st), ErrConflict)
}
