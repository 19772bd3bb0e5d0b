package warfare

import (
	"time"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

type WarEvent int

const (
	EvSiegeStarted WarEvent = iota
	EvSiegeResolved
	EvWindowLapsed
)

// NextWarStatus is the war state machine. ok is false for an event the state does not accept.
func NextWarStatus(from modelpkg.WarStatus, ev WarEvent) (modelpkg.WarStatus, bool) {
	switch from {
	case modelpkg.WarDeclared:
		switch ev {
		case EvSiegeStarted:
			return modelpkg.WarSiegeActive, true
		case EvWindowLapsed:
			return modelpkg.WarExpired, true
		}
	case modelpkg.WarSiegeActive:
		switch ev {
		case EvSiegeResolved, EvWindowLapsed:
			return modelpkg.WarCompleted, true
		}
	}
	return from, false
}

// Rates are countdown speeds in siege-seconds per wall-second, by zone control.
type Rates struct {
	Attacker float64
	Passive  float64
	Defender float64
}

func (r Rates) For(control int) float64 {
	switch {
	case control > 0:
		return r.Attacker
	case control < 0:
		return r.Defender
	default:
		return r.Passive
	}
}

// Clock is the mutable part of a siege's countdown.
type Clock struct {
	Remaining    float64
	AttackerHeld float64
	DefenderHeld float64
}

// Advance runs the countdown for dt seconds under the given zone control.
func (c Clock) Advance(control int, dt float64, r Rates) Clock {
	if dt <= 0 {
		return c
	}
	c.Remaining -= r.For(control) * dt
	if c.Remaining < 0 {
		c.Remaining = 0
	}
	switch {
	case control > 0:
		c.AttackerHeld += dt
	case control < 0:
		c.DefenderHeld += dt
	}
	return c
}

// AttackerFavored reports whether the clock has run in the attacker's favor.
func (c Clock) AttackerFavored(control int) bool {
	return control > 0 || c.AttackerHeld > c.DefenderHeld
}

// Judge decides whether a siege is over. It returns SiegeActive while it continues.
func Judge(c Clock, control int, now, endsAt, windowEnds time.Time) modelpkg.SiegeStatus {
	if c.Remaining <= 0 {
		if c.AttackerFavored(control) {
			return modelpkg.SiegeAttackerWin
		}
		return modelpkg.SiegeDefenderWin
	}
	if !now.Before(endsAt) {
		return modelpkg.SiegeDefenderWin
	}
	if !windowEnds.IsZero() && !now.Before(windowEnds) {
		return modelpkg.SiegeExpired
	}
	return modelpkg.SiegeActive
}

func clockOf(s *modelpkg.Siege) Clock {
	return Clock{Remaining: s.Remaining, AttackerHeld: s.AttackerHeld, DefenderHeld: s.DefenderHeld}
}

func (c Clock) applyTo(s *modelpkg.Siege) {
	s.Remaining, s.AttackerHeld, s.DefenderHeld = c.Remaining, c.AttackerHeld, c.DefenderHeld
}
