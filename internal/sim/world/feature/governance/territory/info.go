package territory

import (
	"time"

	"github.com/shopspring/decimal"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// ChunkInfo is the read model behind the INFO command.
type ChunkInfo struct {
	Coord     modelpkg.ChunkCoord     `json:"coord"`
	Claimed   bool                    `json:"claimed"`
	ClanID    string                  `json:"clan_id,omitempty"`
	ClanName  string                  `json:"clan_name,omitempty"`
	ClaimedAt time.Time               `json:"claimed_at,omitempty"`
	State     modelpkg.TerritoryState `json:"state,omitempty"`
	Warzone   bool                    `json:"warzone"`
}

// ClanSummary is the read model behind the LIST command.
type ClanSummary struct {
	ClanID          string                    `json:"clan_id"`
	ClanName        string                    `json:"clan_name"`
	Territories     []modelpkg.TerritoryChunk `json:"territories"`
	Count           int                       `json:"count"`
	Max             int                       `json:"max"`
	State           modelpkg.TerritoryState   `json:"state"`
	Balance         decimal.Decimal           `json:"balance"`
	MaintenanceCost decimal.Decimal           `json:"maintenance_cost"`
	Delinquency     int                       `json:"delinquency"`
}

func (m *Manager) Info(coord modelpkg.ChunkCoord) ChunkInfo {
	info := ChunkInfo{Coord: coord}
	t, ok := m.cache.Get(coord)
	if !ok {
		return info
	}
	info.Claimed = true
	info.ClanID = t.ClanID
	info.ClaimedAt = t.ClaimedAt
	if ref := m.clans.ClanByID(t.ClanID); ref != nil {
		info.ClanName = ref.Name
	}
	info.State = m.GetTerritoryState(t.ClanID)
	info.Warzone = m.warzone != nil && m.warzone.IsWarzone(coord)
	return info
}

func (m *Manager) List(clanID string) ClanSummary {
	s := ClanSummary{
		ClanID:          clanID,
		Territories:     m.cache.TerritoriesOf(clanID),
		Count:           m.cache.CountOf(clanID),
		Max:             m.cfg.MaxClaims,
		State:           m.GetTerritoryState(clanID),
		Balance:         m.ledger.BalanceOf(clanID),
		MaintenanceCost: m.GetMaintenanceCost(clanID),
		Delinquency:     m.stages[clanID],
	}
	if ref := m.clans.ClanByID(clanID); ref != nil {
		s.ClanName = ref.Name
	}
	return s
}
