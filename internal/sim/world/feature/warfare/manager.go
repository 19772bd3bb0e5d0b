// Package warfare runs war declarations, siege starts and the live zone-control
// contest. Like the territory manager it lives on the world goroutine: validation is
// synchronous, storage commits complete later through done callbacks.
package warfare

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/tuning"
	bankpkg "warfront.gg/internal/sim/world/feature/economy/bank"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Territories is the slice of the territory manager that warfare depends on.
type Territories interface {
	GetTerritoryAt(coord modelpkg.ChunkCoord) (modelpkg.TerritoryChunk, bool)
	Pending(coord modelpkg.ChunkCoord) bool
	IsClanVulnerable(clanID string) bool
	TransferTerritory(coord modelpkg.ChunkCoord, toClan string, at time.Time)
}

// Host is the live world the siege plays out in.
type Host interface {
	ParticipantsNear(pos modelpkg.BlockPos, radius int) []modelpkg.Participant
	MaterializeMarker(pos modelpkg.BlockPos)
	RemoveMarker(pos modelpkg.BlockPos)
	ReturnMarker(participantID string)
	Notify(participantID, msg string)
	Announce(msg string)
}

type Auditor interface {
	WriteAudit(e modelpkg.AuditEntry) error
}

type Config struct {
	DeclarationCost   decimal.Decimal
	ExclusivityWindow time.Duration
	SiegeDuration     time.Duration
	ContestRadius     int
	Rates             Rates
	ChannelDuration   time.Duration
	CheckpointEvery   time.Duration
}

func ConfigFrom(t tuning.Tuning) Config {
	return Config{
		DeclarationCost:   t.War.DeclarationCost,
		ExclusivityWindow: t.War.ExclusivityWindow.D(),
		SiegeDuration:     t.Siege.Duration.D(),
		ContestRadius:     t.Siege.ContestRadius,
		Rates: Rates{
			Attacker: t.Siege.AttackerRate,
			Passive:  t.Siege.PassiveRate,
			Defender: t.Siege.DefenderRate,
		},
		ChannelDuration: t.Siege.ChannelDuration.D(),
		CheckpointEvery: t.Siege.CheckpointEvery.D(),
	}
}

type Deps struct {
	Territories Territories
	Ledger      *bankpkg.Ledger
	Clans       clans.Directory
	Store       store.Gateway
	Host        Host
	Log         *zap.Logger
	Audit       Auditor
	Now         func() time.Time
}

type pair struct{ a, b string }

func pairOf(x, y string) pair {
	if x > y {
		x, y = y, x
	}
	return pair{x, y}
}

type Manager struct {
	cfg     Config
	terr    Territories
	ledger  *bankpkg.Ledger
	clans   clans.Directory
	store   store.Gateway
	host    Host
	log     *zap.Logger
	audit   Auditor
	now     func() time.Time
	rituals map[string]*ritual

	wars        map[int64]*modelpkg.War
	ended       map[pair]modelpkg.War
	pendingWars map[pair]bool
	expiring    map[int64]bool

	sieges        map[int64]*modelpkg.Siege
	siegeAt       map[modelpkg.ChunkCoord]int64
	pendingSieges map[modelpkg.ChunkCoord]int64
	resolving     map[int64]bool
	lastSample    map[int64]time.Time
	lastSaved     map[int64]time.Time
	victories     map[string]time.Time
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
		terr:    d.Territories,
		ledger:  d.Ledger,
		clans:   d.Clans,
		store:   d.Store,
		host:    d.Host,
		log:     d.Log.Named("warfare"),
		audit:   d.Audit,
		now:     d.Now,
		rituals: map[string]*ritual{},

		wars:        map[int64]*modelpkg.War{},
		ended:       map[pair]modelpkg.War{},
		pendingWars: map[pair]bool{},
		expiring:    map[int64]bool{},

		sieges:        map[int64]*modelpkg.Siege{},
		siegeAt:       map[modelpkg.ChunkCoord]int64{},
		pendingSieges: map[modelpkg.ChunkCoord]int64{},
		resolving:     map[int64]bool{},
		lastSample:    map[int64]time.Time{},
		lastSaved:     map[int64]time.Time{},
		victories:     map[string]time.Time{},
	}
}

// Restore loads live wars and active sieges at startup. Downtime since a siege's
// last checkpoint is credited to it: EndsAt and its war's window both move forward.
func (m *Manager) Restore(wars []modelpkg.War, sieges []modelpkg.Siege) {
	now := m.now()
	for i := range wars {
		w := wars[i]
		if w.Status.Live() {
			m.wars[w.ID] = &w
		}
	}
	for i := range sieges {
		sg := sieges[i]
		if sg.Status != modelpkg.SiegeActive {
			continue
		}
		sg.Attackers = map[string]struct{}{}
		sg.Defenders = map[string]struct{}{}
		last := sg.CheckpointAt
		if last.IsZero() {
			last = sg.StartedAt
		}
		if down := now.Sub(last); down > 0 {
			sg.EndsAt = sg.EndsAt.Add(down)
			sg.Paused += down
		}
		m.sieges[sg.ID] = &sg
		m.siegeAt[sg.Coord] = sg.ID
		m.lastSample[sg.ID] = now
		if m.host != nil {
			m.host.MaterializeMarker(sg.Altar)
		}
		m.checkpoint(&sg, now)
	}
}

// liveWar returns the newest DECLARED or SIEGE_ACTIVE war between two clans, in
// either direction.
func (m *Manager) liveWar(x, y string) *modelpkg.War {
	ids := m.warIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		if w := m.wars[ids[i]]; w.Involves(x, y) && w.Status.Live() {
			return w
		}
	}
	return nil
}

func (m *Manager) warIDs() []int64 {
	ids := make([]int64, 0, len(m.wars))
	for id := range m.wars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Manager) siegeIDs() []int64 {
	ids := make([]int64, 0, len(m.sieges))
	for id := range m.sieges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Manager) GetActiveSiege(coord modelpkg.ChunkCoord) (modelpkg.Siege, bool) {
	id, ok := m.siegeAt[coord]
	if !ok {
		return modelpkg.Siege{}, false
	}
	return copySiege(m.sieges[id]), true
}

// IsWarzone reports whether coord hosts an ACTIVE siege.
func (m *Manager) IsWarzone(coord modelpkg.ChunkCoord) bool {
	_, ok := m.siegeAt[coord]
	return ok
}

func (m *Manager) Contested(coord modelpkg.ChunkCoord) bool {
	if m.IsWarzone(coord) {
		return true
	}
	_, ok := m.pendingSieges[coord]
	return ok
}

func (m *Manager) InActiveSiege(clanID string) bool {
	for _, sg := range m.sieges {
		if sg.Aggressor == clanID || sg.Defender == clanID {
			return true
		}
	}
	return false
}

func (m *Manager) LastVictory(clanID string) (time.Time, bool) {
	t, ok := m.victories[clanID]
	return t, ok
}

func (m *Manager) ActiveWars() []modelpkg.War {
	out := make([]modelpkg.War, 0, len(m.wars))
	for _, id := range m.warIDs() {
		out = append(out, *m.wars[id])
	}
	return out
}

func (m *Manager) ActiveSieges() []modelpkg.Siege {
	out := make([]modelpkg.Siege, 0, len(m.sieges))
	for _, id := range m.siegeIDs() {
		out = append(out, copySiege(m.sieges[id]))
	}
	return out
}

// WarBetween returns the live war between two clans, if any.
func (m *Manager) WarBetween(x, y string) (modelpkg.War, bool) {
	if w := m.liveWar(x, y); w != nil {
		return *w, true
	}
	return modelpkg.War{}, false
}

func copySiege(sg *modelpkg.Siege) modelpkg.Siege {
	out := *sg
	out.Attackers = make(map[string]struct{}, len(sg.Attackers))
	for k := range sg.Attackers {
		out.Attackers[k] = struct{}{}
	}
	out.Defenders = make(map[string]struct{}, len(sg.Defenders))
	for k := range sg.Defenders {
		out.Defenders[k] = struct{}{}
	}
	return out
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

func (m *Manager) notify(participantID, msg string) {
	if m.host != nil && participantID != "" {
		m.host.Notify(participantID, msg)
	}
}

func (m *Manager) announce(msg string) {
	if m.host != nil {
		m.host.Announce(msg)
	}
}

func (m *Manager) clanName(id string) string {
	if ref := m.clans.ClanByID(id); ref != nil && ref.Name != "" {
		return ref.Name
	}
	return id
}
