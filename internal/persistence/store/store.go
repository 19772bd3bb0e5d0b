// Package store is the persistence gateway for territories, wars, sieges and clan
// banks. Every mutating call is asynchronous: the operation runs off the world
// goroutine and its completion callback is handed back through a Poster, so
// callbacks only ever execute on the world goroutine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

var (
	// ErrConflict reports a uniqueness or state-guard violation (chunk already owned,
	// territory already hosting an active siege, war no longer in the expected state).
	ErrConflict          = errors.New("store: conflict")
	ErrInsufficientFunds = errors.New("store: insufficient funds")
	ErrNotFound          = errors.New("store: not found")
	ErrBusy              = errors.New("store: queue full")
	ErrClosed            = errors.New("store: closed")
)

// Poster re-marshals a completion callback onto the world goroutine.
type Poster interface {
	Post(fn func())
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func())

func (f PosterFunc) Post(fn func()) { f(fn) }

// Deferrer is implemented by posters that can queue work from their own goroutine
// without blocking. Gateway methods are called on the poster's goroutine, so a
// completion produced before the method returns goes through Defer when available.
type Deferrer interface {
	Defer(fn func())
}

// postLocal hands back a completion produced on the caller's goroutine.
func postLocal(p Poster, fn func()) {
	if d, ok := p.(Deferrer); ok {
		d.Defer(fn)
		return
	}
	p.Post(fn)
}

// Debit is an optional bank charge applied in the same transaction as the write
// it accompanies. A zero Amount means no charge.
type Debit struct {
	ClanID string
	Amount decimal.Decimal
}

func (d Debit) Empty() bool { return d.ClanID == "" || d.Amount.IsZero() }

type BankChange struct {
	ClanID string
	Delta  decimal.Decimal
	// MaintainedAt, when set, stamps the clan's last-maintenance time.
	MaintainedAt time.Time
	At           time.Time
}

type Transfer struct {
	TerritoryID int64
	ClanID      string
	At          time.Time
}

type SiegeResolution struct {
	SiegeID      int64
	WarID        int64
	Status       modelpkg.SiegeStatus
	WarStatus    modelpkg.WarStatus
	Remaining    float64
	AttackerHeld float64
	DefenderHeld float64
	Transfer     *Transfer
	At           time.Time
}

// SiegeCheckpoint persists a live siege's clock.
type SiegeCheckpoint struct {
	SiegeID      int64
	Remaining    float64
	AttackerHeld float64
	DefenderHeld float64
	EndsAt       time.Time
	Paused       time.Duration
	At           time.Time
}

// State is the bulk startup read: all territories, live wars, active sieges and banks.
type State struct {
	Territories []modelpkg.TerritoryChunk
	Wars        []modelpkg.War
	Sieges      []modelpkg.Siege
	Banks       []modelpkg.ClanBank
}

type Gateway interface {
	Load(ctx context.Context) (State, error)

	InsertTerritory(t modelpkg.TerritoryChunk, debit Debit, done func(id int64, bank *modelpkg.ClanBank, err error))
	DeleteTerritory(id int64, clanID string, done func(err error))

	CreateWar(w modelpkg.War, debit Debit, done func(id int64, bank *modelpkg.ClanBank, err error))
	UpdateWarStatus(id int64, from, to modelpkg.WarStatus, done func(err error))

	// CreateSiege inserts an ACTIVE siege and moves its war from DECLARED to SIEGE_ACTIVE.
	CreateSiege(s modelpkg.Siege, done func(id int64, err error))
	ResolveSiege(r SiegeResolution, done func(err error))
	// CheckpointSiege updates an ACTIVE siege's clock; it is a no-op for a resolved one.
	CheckpointSiege(c SiegeCheckpoint, done func(err error))

	AdjustBank(c BankChange, done func(bank modelpkg.ClanBank, err error))

	Close() error
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
