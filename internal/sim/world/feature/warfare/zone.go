package warfare

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Tick advances channeling rituals and every active siege to now.
func (m *Manager) Tick(now time.Time) {
	m.advanceRituals(now)
	for _, id := range m.siegeIDs() {
		sg := m.sieges[id]
		if sg == nil || m.resolving[id] {
			continue
		}
		m.sample(sg)
		control := sg.ZoneControl()

		dt := now.Sub(m.lastSample[id]).Seconds()
		m.lastSample[id] = now
		clock := clockOf(sg).Advance(control, dt, m.cfg.Rates)
		clock.applyTo(sg)

		if verdict := Judge(clock, control, now, sg.EndsAt, m.windowEnds(sg)); verdict.Final() {
			m.resolve(sg, verdict, now)
			continue
		}
		if m.cfg.CheckpointEvery > 0 && now.Sub(m.lastSaved[id]) >= m.cfg.CheckpointEvery {
			m.checkpoint(sg, now)
		}
	}
}

// sample refreshes the presence sets from participants standing near the altar.
func (m *Manager) sample(sg *modelpkg.Siege) {
	attackers := map[string]struct{}{}
	defenders := map[string]struct{}{}
	if m.host != nil {
		for _, p := range m.host.ParticipantsNear(sg.Altar, m.cfg.ContestRadius) {
			clan := m.clans.ClanOf(p.ID)
			if clan == nil {
				continue
			}
			switch clan.ID {
			case sg.Aggressor:
				attackers[p.ID] = struct{}{}
			case sg.Defender:
				defenders[p.ID] = struct{}{}
			}
		}
	}
	sg.Attackers = attackers
	sg.Defenders = defenders
}

func (m *Manager) windowEnds(sg *modelpkg.Siege) time.Time {
	if w := m.wars[sg.WarID]; w != nil {
		return w.WindowEnds.Add(sg.Paused)
	}
	return time.Time{}
}

func (m *Manager) checkpoint(sg *modelpkg.Siege, now time.Time) {
	id := sg.ID
	m.lastSaved[id] = now
	sg.CheckpointAt = now
	c := store.SiegeCheckpoint{
		SiegeID:      id,
		Remaining:    sg.Remaining,
		AttackerHeld: sg.AttackerHeld,
		DefenderHeld: sg.DefenderHeld,
		EndsAt:       sg.EndsAt,
		Paused:       sg.Paused,
		At:           now,
	}
	m.store.CheckpointSiege(c, func(err error) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			m.log.Warn("siege checkpoint failed", zap.Int64("siege", id), zap.Error(err))
		}
	})
}

// resolve finalizes a siege in storage, then in memory. A failed write leaves the
// siege ACTIVE so the next tick tries again.
func (m *Manager) resolve(sg *modelpkg.Siege, status modelpkg.SiegeStatus, now time.Time) {
	id := sg.ID
	m.resolving[id] = true

	warStatus := modelpkg.WarCompleted
	if w := m.wars[sg.WarID]; w != nil {
		ev := EvSiegeResolved
		if status == modelpkg.SiegeExpired {
			ev = EvWindowLapsed
		}
		if next, ok := NextWarStatus(w.Status, ev); ok {
			warStatus = next
		}
	}
	res := store.SiegeResolution{
		SiegeID:      id,
		WarID:        sg.WarID,
		Status:       status,
		WarStatus:    warStatus,
		Remaining:    sg.Remaining,
		AttackerHeld: sg.AttackerHeld,
		DefenderHeld: sg.DefenderHeld,
		At:           now,
	}
	if status == modelpkg.SiegeAttackerWin {
		res.Transfer = &store.Transfer{TerritoryID: sg.TerritoryID, ClanID: sg.Aggressor, At: now}
	}

	m.store.ResolveSiege(res, func(err error) {
		delete(m.resolving, id)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrConflict):
			// Storage already finalized it; drop the stale in-memory copy without a transfer.
			m.log.Warn("siege already resolved in storage", zap.Int64("siege", id))
			m.dropSiege(sg, warStatus)
			return
		default:
			m.log.Error("siege resolution write failed",
				zap.Int64("siege", id), zap.String("status", string(status)), zap.Error(err))
			return
		}

		sg.Status = status
		m.dropSiege(sg, warStatus)
		switch status {
		case modelpkg.SiegeAttackerWin:
			m.terr.TransferTerritory(sg.Coord, sg.Aggressor, now)
			m.victories[sg.Aggressor] = now
			m.announce(fmt.Sprintf("%s has taken %s from %s", m.clanName(sg.Aggressor), sg.Coord, m.clanName(sg.Defender)))
		case modelpkg.SiegeDefenderWin:
			m.victories[sg.Defender] = now
			m.announce(fmt.Sprintf("%s held %s against %s", m.clanName(sg.Defender), sg.Coord, m.clanName(sg.Aggressor)))
		default:
			m.announce(fmt.Sprintf("the siege of %s ended with the war's window", sg.Coord))
		}
		m.record("SIEGE_END", "", sg.Aggressor, &sg.Coord, Outcome{Result: Success}, map[string]any{
			"siege_id": id, "status": string(status), "defender": sg.Defender,
			"attacker_held": sg.AttackerHeld, "defender_held": sg.DefenderHeld,
		})
	})
}

func (m *Manager) dropSiege(sg *modelpkg.Siege, warStatus modelpkg.WarStatus) {
	delete(m.sieges, sg.ID)
	if m.siegeAt[sg.Coord] == sg.ID {
		delete(m.siegeAt, sg.Coord)
	}
	delete(m.lastSample, sg.ID)
	delete(m.lastSaved, sg.ID)
	if w := m.wars[sg.WarID]; w != nil {
		w.Status = warStatus
		m.ended[pairOf(w.Aggressor, w.Defender)] = *w
		delete(m.wars, sg.WarID)
	}
	if m.host != nil {
		m.host.RemoveMarker(sg.Altar)
	}
}
