package warfare

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// StartSiege opens a siege on coord with its marker at altar. It is normally
// reached through a completed channeling ritual.
func (m *Manager) StartSiege(p modelpkg.Participant, coord modelpkg.ChunkCoord, altar modelpkg.BlockPos, done func(Outcome)) Outcome {
	clan := m.clans.ClanOf(p.ID)
	var clanID string
	if clan != nil {
		clanID = clan.ID
	}
	details := map[string]any{"altar": altar.String()}
	reject := func(o Outcome) Outcome {
		m.record("START_SIEGE", p.ID, clanID, &coord, o, details)
		return finish(done, o)
	}

	t, ok := m.terr.GetTerritoryAt(coord)
	if !ok {
		return reject(fail(NotTerritory))
	}
	if clan == nil {
		return reject(fail(NoClan))
	}
	if t.ClanID == clan.ID {
		return reject(fail(OwnTerritory))
	}

	now := m.now()
	w := m.liveWar(clan.ID, t.ClanID)
	if w == nil {
		if _, ok := m.ended[pairOf(clan.ID, t.ClanID)]; ok {
			return reject(fail(ExpiredWar))
		}
		return reject(fail(NoWar))
	}
	if w.Status == modelpkg.WarDeclared && !w.WindowOpen(now) {
		m.expireWar(w)
		return reject(fail(ExpiredWar))
	}
	if w.Status != modelpkg.WarDeclared {
		return reject(Outcome{Result: SiegeActive, Detail: "this war already has its siege"})
	}
	if m.Contested(coord) || m.warHasPendingSiege(w.ID) {
		return reject(fail(SiegeActive))
	}
	if m.terr.Pending(coord) {
		return reject(Outcome{Result: NotTerritory, Detail: "this territory is changing hands"})
	}

	sg := modelpkg.Siege{
		WarID:        w.ID,
		TerritoryID:  t.ID,
		Coord:        coord,
		Aggressor:    clan.ID,
		Defender:     t.ClanID,
		Altar:        altar,
		StartedAt:    now,
		EndsAt:       now.Add(m.cfg.SiegeDuration),
		CheckpointAt: now,
		Remaining:    m.cfg.SiegeDuration.Seconds(),
		Status:       modelpkg.SiegeActive,
	}
	details["war_id"] = w.ID
	m.pendingSieges[coord] = w.ID
	m.store.CreateSiege(sg, func(id int64, err error) {
		delete(m.pendingSieges, coord)
		out := m.commitSiege(&sg, id, err)
		if out.Result.OK() {
			details["siege_id"] = id
		}
		m.record("START_SIEGE", p.ID, clan.ID, &coord, out, details)
		if done != nil {
			done(out)
		}
	})
	return Outcome{Result: Success}
}

func (m *Manager) warHasPendingSiege(warID int64) bool {
	for _, id := range m.pendingSieges {
		if id == warID {
			return true
		}
	}
	return false
}

func (m *Manager) commitSiege(sg *modelpkg.Siege, id int64, err error) Outcome {
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fail(SiegeActive)
		}
		m.log.Error("siege start write failed",
			zap.Int64("war", sg.WarID), zap.Stringer("chunk", sg.Coord), zap.Error(err))
		return fail(DatabaseError)
	}
	if _, taken := m.siegeAt[sg.Coord]; taken {
		// Storage enforces one active siege per territory; reaching here means memory drifted.
		m.log.Error("siege committed over a live siege", zap.Int64("siege", id), zap.Stringer("chunk", sg.Coord))
		return fail(SiegeActive)
	}

	now := m.now()
	sg.ID = id
	sg.Attackers = map[string]struct{}{}
	sg.Defenders = map[string]struct{}{}
	m.sieges[id] = sg
	m.siegeAt[sg.Coord] = id
	m.lastSample[id] = now
	m.lastSaved[id] = now
	if w := m.wars[sg.WarID]; w != nil {
		if next, ok := NextWarStatus(w.Status, EvSiegeStarted); ok {
			w.Status = next
		}
	}
	if m.host != nil {
		m.host.MaterializeMarker(sg.Altar)
	}
	m.announce(fmt.Sprintf("%s is besieging %s at %s", m.clanName(sg.Aggressor), m.clanName(sg.Defender), sg.Coord))
	return Outcome{Result: Success}
}
