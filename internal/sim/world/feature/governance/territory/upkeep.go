package territory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	maintenancepkg "warfront.gg/internal/sim/world/feature/governance/maintenance"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

func maintenanceCost(cfg Config, territories int) decimal.Decimal {
	return maintenancepkg.Cost(cfg.MaintenanceBase, cfg.MaintenanceScale, territories)
}

// DelinquencyStage is the clan's upkeep standing (maintenance.StageOK .. StageUnprotected).
func (m *Manager) DelinquencyStage(clanID string) int { return m.stages[clanID] }

// SweepMaintenance bills every territory-holding clan whose upkeep is due. Each
// clan is billed independently; one clan's failure does not affect the others.
// It returns the number of clans billed.
func (m *Manager) SweepMaintenance() int {
	now := m.now()
	billed := 0
	for _, clanID := range m.cache.Clans() {
		count := m.cache.CountOf(clanID)
		if count == 0 || m.billing[clanID] {
			continue
		}
		acct := m.ledger.Get(clanID)
		if !maintenancepkg.Due(acct.LastMaintenance, now, m.cfg.MaintenanceInterval) {
			continue
		}
		cost := maintenanceCost(m.cfg, count)
		billed++
		m.billing[clanID] = true
		clanID := clanID
		m.store.AdjustBank(store.BankChange{ClanID: clanID, Delta: cost.Neg(), MaintainedAt: now, At: now}, func(bank modelpkg.ClanBank, err error) {
			m.settleUpkeep(clanID, cost, now, bank, err)
		})
	}
	if billed > 0 {
		m.log.Info("maintenance sweep", zap.Int("clans_billed", billed))
	}
	return billed
}

func (m *Manager) settleUpkeep(clanID string, cost decimal.Decimal, at time.Time, bank modelpkg.ClanBank, err error) {
	switch {
	case err == nil:
		delete(m.billing, clanID)
		m.ledger.Set(clanID, bank.Balance)
		m.ledger.MarkMaintained(clanID, at)
		m.stages[clanID] = maintenancepkg.NextStage(m.stages[clanID], true)
		m.record("MAINTENANCE", "", clanID, nil, Outcome{Result: Success}, map[string]any{"cost": cost.StringFixed(2)})

	case errors.Is(err, store.ErrInsufficientFunds):
		stage := maintenancepkg.NextStage(m.stages[clanID], false)
		m.stages[clanID] = stage
		m.log.Warn("maintenance unpaid",
			zap.String("clan", clanID), zap.String("cost", cost.StringFixed(2)), zap.Int("stage", stage))
		m.record("MAINTENANCE", "", clanID, nil, fail(InsufficientFunds), map[string]any{"cost": cost.StringFixed(2), "stage": stage})
		if m.unpaid != nil {
			m.unpaid(clanID, cost, stage)
		}
		// Close the billing period so the clan is billed again next interval, not next sweep.
		m.store.AdjustBank(store.BankChange{ClanID: clanID, MaintainedAt: at, At: at}, func(bank modelpkg.ClanBank, err error) {
			delete(m.billing, clanID)
			if err != nil {
				m.log.Error("maintenance period stamp failed", zap.String("clan", clanID), zap.Error(err))
				return
			}
			m.ledger.Set(clanID, bank.Balance)
			m.ledger.MarkMaintained(clanID, at)
		})

	default:
		delete(m.billing, clanID)
		m.log.Error("maintenance debit failed", zap.String("clan", clanID), zap.Error(err))
		m.record("MAINTENANCE", "", clanID, nil, fail(DatabaseError), map[string]any{"cost": cost.StringFixed(2)})
	}
}
