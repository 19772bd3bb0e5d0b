package warfare

import (
	"fmt"
	"sort"
	"time"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// ritual is a channeling in progress: the participant must stand still on the
// block they started from until due.
type ritual struct {
	who   modelpkg.Participant
	altar modelpkg.BlockPos
	from  modelpkg.BlockPos
	due   time.Time
}

// BeginChannel starts the siege ritual for a marker placed at altar by a participant
// standing at from. It reports false if the participant is already channeling; the
// caller keeps the marker in that case.
func (m *Manager) BeginChannel(p modelpkg.Participant, altar, from modelpkg.BlockPos) bool {
	if _, busy := m.rituals[p.ID]; busy {
		return false
	}
	m.rituals[p.ID] = &ritual{who: p, altar: altar, from: from, due: m.now().Add(m.cfg.ChannelDuration)}
	m.notify(p.ID, fmt.Sprintf("channeling siege marker, hold still for %s", m.cfg.ChannelDuration))
	return true
}

func (m *Manager) Channeling(participantID string) bool {
	_, ok := m.rituals[participantID]
	return ok
}

// OnMove cancels the participant's ritual if they left their starting block.
func (m *Manager) OnMove(participantID string, pos modelpkg.BlockPos) {
	r, ok := m.rituals[participantID]
	if !ok || pos == r.from {
		return
	}
	m.cancelRitual(participantID, "you moved, the ritual was interrupted")
}

// OnQuit cancels the participant's ritual on disconnect.
func (m *Manager) OnQuit(participantID string) {
	if _, ok := m.rituals[participantID]; ok {
		m.cancelRitual(participantID, "")
	}
}

func (m *Manager) cancelRitual(participantID, msg string) {
	delete(m.rituals, participantID)
	if m.host != nil {
		m.host.ReturnMarker(participantID)
	}
	if msg != "" {
		m.notify(participantID, msg)
	}
}

func (m *Manager) advanceRituals(now time.Time) {
	if len(m.rituals) == 0 {
		return
	}
	ids := make([]string, 0, len(m.rituals))
	for id, r := range m.rituals {
		if !now.Before(r.due) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		id := id // per-iteration copy (go1.22 loopvar semantics on go1.21)
		r := m.rituals[id]
		delete(m.rituals, id)
		m.StartSiege(r.who, modelpkg.ChunkOf(r.altar), r.altar, func(o Outcome) {
			if o.Result.OK() {
				m.notify(id, "the siege has begun")
				return
			}
			if m.host != nil {
				m.host.ReturnMarker(id)
			}
			m.notify(id, o.Reason())
		})
	}
}
