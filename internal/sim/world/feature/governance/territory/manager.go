// Package territory owns chunk claims, clan upkeep and the clan bank surface.
// A Manager is driven from the world goroutine: its methods validate synchronously
// and return a provisional Outcome, and any storage-backed commit finishes later
// through the done callback on the same goroutine.
package territory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/tuning"
	bankpkg "warfront.gg/internal/sim/world/feature/economy/bank"
	claimspkg "warfront.gg/internal/sim/world/feature/governance/claims"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Warzone answers siege questions the territory rules depend on.
type Warzone interface {
	// IsWarzone reports whether coord is the target of an active siege.
	IsWarzone(coord modelpkg.ChunkCoord) bool
	// Contested is IsWarzone plus sieges whose start is still being written.
	Contested(coord modelpkg.ChunkCoord) bool
	InActiveSiege(clanID string) bool
	LastVictory(clanID string) (time.Time, bool)
}

type Auditor interface {
	WriteAudit(e modelpkg.AuditEntry) error
}

// UnpaidHook is invoked when a clan misses an upkeep payment.
type UnpaidHook func(clanID string, cost decimal.Decimal, stage int)

type Config struct {
	MaxClaims           int
	ClaimCost           decimal.Decimal
	MaintenanceBase     decimal.Decimal
	MaintenanceScale    decimal.Decimal
	MaintenanceInterval time.Duration
	VictoryWindow       time.Duration
}

func ConfigFrom(t tuning.Tuning) Config {
	return Config{
		MaxClaims:           t.Claims.MaxPerClan,
		ClaimCost:           t.Claims.Cost,
		MaintenanceBase:     t.Maintenance.Base,
		MaintenanceScale:    t.Maintenance.Scale,
		MaintenanceInterval: t.Maintenance.Interval.D(),
		VictoryWindow:       t.War.VictoryWindow.D(),
	}
}

type Deps struct {
	Cache  *claimspkg.Cache
	Ledger *bankpkg.Ledger
	Clans  clans.Directory
	Store  store.Gateway
	Log    *zap.Logger
	Audit  Auditor
	Now    func() time.Time
}

type Manager struct {
	cfg    Config
	cache  *claimspkg.Cache
	ledger *bankpkg.Ledger
	clans  clans.Directory
	store  store.Gateway
	log    *zap.Logger
	audit  Auditor
	now    func() time.Time

	warzone Warzone
	unpaid  UnpaidHook
	stages  map[string]int
	billing map[string]bool
}

func NewManager(cfg Config, d Deps) *Manager {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Manager{
		cfg:     cfg,
		cache:   d.Cache,
		ledger:  d.Ledger,
		clans:   d.Clans,
		store:   d.Store,
		log:     d.Log.Named("territory"),
		audit:   d.Audit,
		now:     d.Now,
		stages:  map[string]int{},
		billing: map[string]bool{},
	}
}

// SetWarzone wires the siege oracle. The war manager depends on this manager, so
// the link is made after both exist.
func (m *Manager) SetWarzone(w Warzone) { m.warzone = w }

func (m *Manager) SetUnpaidHook(h UnpaidHook) { m.unpaid = h }

func (m *Manager) Cache() *claimspkg.Cache { return m.cache }
func (m *Manager) Ledger() *bankpkg.Ledger { return m.ledger }

// ClaimTerritory claims coord for the participant's clan.
func (m *Manager) ClaimTerritory(p modelpkg.Participant, coord modelpkg.ChunkCoord, done func(Outcome)) Outcome {
	clan := m.clans.ClanOf(p.ID)
	var clanID string
	if clan != nil {
		clanID = clan.ID
	}
	reject := func(o Outcome) Outcome {
		m.record("CLAIM", p.ID, clanID, &coord, o, nil)
		return finish(done, o)
	}

	if clan == nil {
		return reject(fail(NoClan))
	}
	if !m.clans.HasPermission(p.ID, clan.ID, clans.PermClaim) {
		return reject(fail(NoPermission))
	}
	if m.cache.IsClaimed(coord) || m.cache.Reserved(coord) {
		return reject(fail(AlreadyClaimed))
	}
	if m.cache.CountOf(clan.ID)+m.cache.PendingClaimsOf(clan.ID) >= m.cfg.MaxClaims {
		return reject(fail(OverLimit))
	}
	cost := m.cfg.ClaimCost
	if cost.IsPositive() && !m.ledger.HasEnough(clan.ID, cost) {
		return reject(fail(InsufficientFunds))
	}
	if !m.cache.Reserve(coord, clan.ID) {
		return reject(fail(AlreadyClaimed))
	}

	chunk := modelpkg.TerritoryChunk{Coord: coord, ClanID: clan.ID, ClaimedAt: m.now()}
	debit := store.Debit{}
	if cost.IsPositive() {
		debit = store.Debit{ClanID: clan.ID, Amount: cost}
	}
	m.store.InsertTerritory(chunk, debit, func(id int64, bank *modelpkg.ClanBank, err error) {
		var out Outcome
		switch {
		case err == nil:
			chunk.ID = id
			m.cache.Put(chunk)
			if bank != nil {
				m.ledger.Set(bank.ClanID, bank.Balance)
			}
			out = Outcome{Result: Success}
		case errors.Is(err, store.ErrConflict):
			out = fail(AlreadyClaimed)
		case errors.Is(err, store.ErrInsufficientFunds):
			out = fail(InsufficientFunds)
		default:
			m.log.Error("claim write failed",
				zap.String("participant", p.ID), zap.String("clan", clan.ID),
				zap.Stringer("chunk", coord), zap.Error(err))
			out = fail(DatabaseError)
		}
		m.cache.Release(coord)
		m.record("CLAIM", p.ID, clan.ID, &coord, out, nil)
		if done != nil {
			done(out)
		}
	})
	return Outcome{Result: Success}
}

// UnclaimTerritory releases coord from the participant's clan.
func (m *Manager) UnclaimTerritory(p modelpkg.Participant, coord modelpkg.ChunkCoord, done func(Outcome)) Outcome {
	clan := m.clans.ClanOf(p.ID)
	var clanID string
	if clan != nil {
		clanID = clan.ID
	}
	reject := func(o Outcome) Outcome {
		m.record("UNCLAIM", p.ID, clanID, &coord, o, nil)
		return finish(done, o)
	}

	t, ok := m.cache.Get(coord)
	if !ok {
		return reject(fail(NotTerritory))
	}
	if clan == nil || t.ClanID != clan.ID {
		return reject(fail(NotOwner))
	}
	if !m.clans.HasPermission(p.ID, clan.ID, clans.PermUnclaim) {
		return reject(Outcome{Result: NotOwner, Detail: "your clan role cannot release territory"})
	}
	if m.warzone != nil && m.warzone.Contested(coord) {
		return reject(Outcome{Result: NotOwner, Detail: "territory under siege cannot be released"})
	}
	if !m.cache.ReserveRemoval(coord, clan.ID) {
		return reject(Outcome{Result: NotOwner, Detail: "a change to this territory is already in progress"})
	}

	m.store.DeleteTerritory(t.ID, clan.ID, func(err error) {
		var out Outcome
		switch {
		case err == nil:
			m.cache.Remove(coord)
			out = Outcome{Result: Success}
		case errors.Is(err, store.ErrNotFound):
			// Storage no longer has it for this clan (lost to a siege or already gone).
			out = fail(NotOwner)
		default:
			m.log.Error("unclaim write failed",
				zap.String("participant", p.ID), zap.String("clan", clan.ID),
				zap.Stringer("chunk", coord), zap.Error(err))
			out = fail(DatabaseError)
		}
		m.cache.Release(coord)
		m.record("UNCLAIM", p.ID, clan.ID, &coord, out, nil)
		if done != nil {
			done(out)
		}
	})
	return Outcome{Result: Success}
}

// HasTerritoryPermission reports whether the participant may interact with blocks in coord.
func (m *Manager) HasTerritoryPermission(p modelpkg.Participant, coord modelpkg.ChunkCoord) bool {
	owner, ok := m.cache.OwnerOf(coord)
	if !ok {
		return true
	}
	if clan := m.clans.ClanOf(p.ID); clan != nil && clan.ID == owner {
		return true
	}
	return m.warzone != nil && m.warzone.IsWarzone(coord)
}

func (m *Manager) GetOwningClan(coord modelpkg.ChunkCoord) *modelpkg.ClanRef {
	owner, ok := m.cache.OwnerOf(coord)
	if !ok {
		return nil
	}
	if ref := m.clans.ClanByID(owner); ref != nil {
		return ref
	}
	return &modelpkg.ClanRef{ID: owner}
}

func (m *Manager) GetTerritoryAt(coord modelpkg.ChunkCoord) (modelpkg.TerritoryChunk, bool) {
	return m.cache.Get(coord)
}

func (m *Manager) GetClanTerritories(clanID string) []modelpkg.TerritoryChunk {
	return m.cache.TerritoriesOf(clanID)
}

// Pending reports whether a claim or unclaim of coord is still being written.
func (m *Manager) Pending(coord modelpkg.ChunkCoord) bool { return m.cache.Reserved(coord) }

func (m *Manager) GetTerritoryCount(clanID string) int { return m.cache.CountOf(clanID) }

func (m *Manager) GetMaintenanceCost(clanID string) decimal.Decimal {
	return maintenanceCost(m.cfg, m.cache.CountOf(clanID))
}

// IsClanVulnerable reports whether the clan's morale is below its territory count.
func (m *Manager) IsClanVulnerable(clanID string) bool {
	return m.clans.Morale(clanID) < m.cache.CountOf(clanID)
}

func (m *Manager) GetTerritoryState(clanID string) modelpkg.TerritoryState {
	if m.warzone != nil {
		if m.warzone.InActiveSiege(clanID) {
			return modelpkg.StateAtWar
		}
		if at, ok := m.warzone.LastVictory(clanID); ok && m.now().Before(at.Add(m.cfg.VictoryWindow)) {
			return modelpkg.StateVictorious
		}
	}
	if m.IsClanVulnerable(clanID) {
		return modelpkg.StateVulnerable
	}
	return modelpkg.StateFortified
}

// TransferTerritory records a confirmed ownership change made by a siege resolution.
func (m *Manager) TransferTerritory(coord modelpkg.ChunkCoord, toClan string, at time.Time) {
	t, ok := m.cache.Get(coord)
	if !ok {
		return
	}
	from := t.ClanID
	t.ClanID = toClan
	t.ClaimedAt = at
	m.cache.Put(t)
	m.record("TRANSFER", "", toClan, &coord, Outcome{Result: Success}, map[string]any{"from": from})
}

func (m *Manager) record(action, actor, clanID string, coord *modelpkg.ChunkCoord, o Outcome, details map[string]any) {
	if m.audit == nil {
		return
	}
	if !o.Result.OK() {
		if details == nil {
			details = map[string]any{}
		}
		details["reason"] = o.Reason()
	}
	if err := m.audit.WriteAudit(modelpkg.AuditEntry{
		At: m.now(), Actor: actor, Action: action, ClanID: clanID, Coord: coord,
		Result: string(o.Result), Details: details,
	}); err != nil {
		m.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func finish(done func(Outcome), o Outcome) Outcome {
	if done != nil {
		done(o)
	}
	return o
}

// Restore loads persisted ownership and balances at startup.
func (m *Manager) Restore(territories []modelpkg.TerritoryChunk, banks []modelpkg.ClanBank) {
	m.cache.Load(territories)
	m.ledger.Load(banks)
}
