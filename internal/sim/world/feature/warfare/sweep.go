package warfare

import (
	"time"

	"go.uber.org/zap"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Sweep expires DECLARED wars past their window and resolves overdue sieges. It
// does not sample presence; live sieges are advanced by Tick.
func (m *Manager) Sweep(now time.Time) {
	expired := 0
	for _, id := range m.warIDs() {
		w := m.wars[id]
		if w.Status == modelpkg.WarDeclared && !w.WindowOpen(now) {
			m.expireWar(w)
			expired++
		}
	}
	resolved := 0
	for _, id := range m.siegeIDs() {
		sg := m.sieges[id]
		if m.resolving[id] {
			continue
		}
		if verdict := Judge(clockOf(sg), sg.ZoneControl(), now, sg.EndsAt, m.windowEnds(sg)); verdict.Final() {
			m.resolve(sg, verdict, now)
			resolved++
		}
	}
	if expired > 0 || resolved > 0 {
		m.log.Info("war sweep", zap.Int("wars_expired", expired), zap.Int("sieges_resolved", resolved))
	}
}
