package warfare

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// DeclareWar opens a war from the participant's clan against the named clan.
func (m *Manager) DeclareWar(p modelpkg.Participant, targetName string, done func(Outcome)) Outcome {
	clan := m.clans.ClanOf(p.ID)
	var clanID string
	if clan != nil {
		clanID = clan.ID
	}
	details := map[string]any{"target": targetName}
	reject := func(o Outcome) Outcome {
		m.record("DECLARE_WAR", p.ID, clanID, nil, o, details)
		return finish(done, o)
	}

	if clan == nil {
		return reject(fail(NoClan))
	}
	if !m.clans.HasPermission(p.ID, clan.ID, clans.PermDeclareWar) {
		return reject(fail(NoPermission))
	}
	target := m.clans.ClanByName(targetName)
	if target == nil {
		return reject(fail(TargetNotFound))
	}
	if target.ID == clan.ID {
		return reject(fail(SameClan))
	}
	if !m.terr.IsClanVulnerable(target.ID) {
		return reject(fail(NotVulnerable))
	}
	cost := m.cfg.DeclarationCost
	if cost.IsPositive() && !m.ledger.HasEnough(clan.ID, cost) {
		return reject(fail(InsufficientFunds))
	}

	now := m.now()
	key := pairOf(clan.ID, target.ID)
	if w := m.liveWar(clan.ID, target.ID); w != nil {
		if w.Status == modelpkg.WarDeclared && !w.WindowOpen(now) {
			m.expireWar(w)
		} else {
			return reject(fail(AlreadyAtWar))
		}
	}
	if m.pendingWars[key] {
		return reject(fail(AlreadyAtWar))
	}

	w := modelpkg.War{
		Aggressor:  clan.ID,
		Defender:   target.ID,
		StartedAt:  now,
		WindowEnds: now.Add(m.cfg.ExclusivityWindow),
		Status:     modelpkg.WarDeclared,
	}
	debit := store.Debit{}
	if cost.IsPositive() {
		debit = store.Debit{ClanID: clan.ID, Amount: cost}
	}
	m.pendingWars[key] = true
	m.store.CreateWar(w, debit, func(id int64, bank *modelpkg.ClanBank, err error) {
		delete(m.pendingWars, key)
		var out Outcome
		switch {
		case err == nil:
			w.ID = id
			m.wars[id] = &w
			if bank != nil {
				m.ledger.Set(bank.ClanID, bank.Balance)
			}
			out = Outcome{Result: Success}
			details["war_id"] = id
			m.announce(fmt.Sprintf("%s has declared war on %s", m.clanName(clan.ID), m.clanName(target.ID)))
		case errors.Is(err, store.ErrInsufficientFunds):
			out = fail(InsufficientFunds)
		default:
			m.log.Error("war declaration write failed",
				zap.String("participant", p.ID), zap.String("aggressor", clan.ID),
				zap.String("defender", target.ID), zap.Error(err))
			out = fail(DatabaseError)
		}
		m.record("DECLARE_WAR", p.ID, clan.ID, nil, out, details)
		if done != nil {
			done(out)
		}
	})
	return Outcome{Result: Success}
}

// expireWar moves a DECLARED war whose window has lapsed to EXPIRED. The in-memory
// war is dropped only once storage confirms.
func (m *Manager) expireWar(w *modelpkg.War) {
	if m.expiring[w.ID] {
		return
	}
	next, ok := NextWarStatus(w.Status, EvWindowLapsed)
	if !ok || next != modelpkg.WarExpired {
		return
	}
	m.expiring[w.ID] = true
	id := w.ID
	m.store.UpdateWarStatus(id, modelpkg.WarDeclared, modelpkg.WarExpired, func(err error) {
		delete(m.expiring, id)
		cur := m.wars[id]
		switch {
		case err == nil:
			if cur != nil && cur.Status == modelpkg.WarDeclared {
				cur.Status = modelpkg.WarExpired
				m.ended[pairOf(cur.Aggressor, cur.Defender)] = *cur
				delete(m.wars, id)
			}
			m.record("WAR_EXPIRED", "", w.Aggressor, nil, Outcome{Result: Success}, map[string]any{"war_id": id, "defender": w.Defender})
		case errors.Is(err, store.ErrConflict):
			// A siege claimed the war first.
		default:
			m.log.Error("war expiry write failed", zap.Int64("war", id), zap.Error(err))
		}
	})
}
