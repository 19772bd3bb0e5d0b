package model

import "time"

type TerritoryChunk struct {
	ID        int64 // 0 until persisted
	Coord     ChunkCoord
	ClanID    string
	ClaimedAt time.Time
}

// TerritoryState is derived on demand and never stored.
type TerritoryState string

const (
	StateFortified  TerritoryState = "FORTIFICADO"
	StateVulnerable TerritoryState = "VULNERAVEL"
	StateAtWar      TerritoryState = "EM_GUERRA"
	StateVictorious TerritoryState = "VITORIOSO"
)

// Attackable reports whether a declaration against a clan in this state is allowed.
func (s TerritoryState) Attackable() bool { return s == StateVulnerable }
