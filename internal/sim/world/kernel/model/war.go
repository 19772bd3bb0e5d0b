package model

import "time"

type WarStatus string

const (
	WarDeclared    WarStatus = "DECLARED"
	WarSiegeActive WarStatus = "SIEGE_ACTIVE"
	WarCompleted   WarStatus = "COMPLETED"
	WarExpired     WarStatus = "EXPIRED"
)

// Live reports whether the war still holds the pair's exclusivity.
func (s WarStatus) Live() bool { return s == WarDeclared || s == WarSiegeActive }

type War struct {
	ID         int64
	Aggressor  string
	Defender   string
	StartedAt  time.Time
	WindowEnds time.Time
	Status     WarStatus
}

// Involves reports whether the war is between clans a and b, in either direction.
func (w *War) Involves(a, b string) bool {
	if w == nil {
		return false
	}
	return (w.Aggressor == a && w.Defender == b) || (w.Aggressor == b && w.Defender == a)
}

func (w *War) WindowOpen(now time.Time) bool {
	return w != nil && now.Before(w.WindowEnds)
}
