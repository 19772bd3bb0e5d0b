package model

import "time"

type SiegeStatus string

const (
	SiegeActive      SiegeStatus = "ACTIVE"
	SiegeAttackerWin SiegeStatus = "ATTACKER_WIN"
	SiegeDefenderWin SiegeStatus = "DEFENDER_WIN"
	SiegeExpired     SiegeStatus = "EXPIRED"
)

func (s SiegeStatus) Final() bool { return s != SiegeActive && s != "" }

type Siege struct {
	ID          int64
	WarID       int64
	TerritoryID int64
	Coord       ChunkCoord
	Aggressor   string
	Defender    string
	Altar       BlockPos
	StartedAt   time.Time
	EndsAt      time.Time
	Remaining   float64 // seconds
	Status      SiegeStatus

	// Seconds during which each side held the zone.
	AttackerHeld float64
	DefenderHeld float64

	// CheckpointAt is when Remaining was last persisted. Paused is the server
	// downtime credited to the siege; EndsAt already includes it.
	CheckpointAt time.Time
	Paused       time.Duration

	// Participant ids currently inside the contested radius. Not persisted.
	Attackers map[string]struct{}
	Defenders map[string]struct{}
}

// ZoneControl is +1 when attackers outnumber defenders, -1 for the reverse, 0 on a tie.
func (s *Siege) ZoneControl() int {
	a, d := len(s.Attackers), len(s.Defenders)
	switch {
	case a > d:
		return 1
	case d > a:
		return -1
	default:
		return 0
	}
}
