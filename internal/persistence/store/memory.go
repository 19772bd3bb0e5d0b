package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Memory is an in-process Gateway with the same guards as SQLite. Operations apply
// immediately under a lock; completions are still delivered through the Poster, so
// callers observe the same asynchronous contract. Used by tests and -db=:memory:.
type Memory struct {
	mu   sync.Mutex
	post Poster

	// Fail, when set, is consulted before every mutating op; a non-nil error aborts it.
	Fail func(op string) error

	nextID      int64
	territories map[int64]modelpkg.TerritoryChunk
	wars        map[int64]modelpkg.War
	sieges      map[int64]modelpkg.Siege
	banks       map[string]modelpkg.ClanBank
	closed      bool
}

var _ Gateway = (*Memory)(nil)

func NewMemory(post Poster) *Memory {
	return &Memory{
		post:        post,
		territories: map[int64]modelpkg.TerritoryChunk{},
		wars:        map[int64]modelpkg.War{},
		sieges:      map[int64]modelpkg.Siege{},
		banks:       map[string]modelpkg.ClanBank{},
	}
}

// SetFail installs a failure hook. Safe to call while ops are running.
func (m *Memory) SetFail(fn func(op string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fn
}

func (m *Memory) do(op string, work func() error, complete func(err error)) {
	m.mu.Lock()
	var err error
	switch {
	case m.closed:
		err = ErrClosed
	case m.Fail != nil:
		err = m.Fail(op)
	}
	if err == nil {
		err = work()
	}
	m.mu.Unlock()
	postLocal(m.post, func() { complete(err) })
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) adjustLocked(c BankChange) (modelpkg.ClanBank, error) {
	b, ok := m.banks[c.ClanID]
	if !ok {
		b = modelpkg.ClanBank{ClanID: c.ClanID, Balance: decimal.Zero}
	}
	next := b.Balance.Add(c.Delta)
	if next.IsNegative() {
		return b, ErrInsufficientFunds
	}
	b.Balance = next
	if !c.MaintainedAt.IsZero() {
		b.LastMaintenance = c.MaintainedAt
	}
	b.UpdatedAt = c.At
	m.banks[c.ClanID] = b
	return b, nil
}

func (m *Memory) InsertTerritory(t modelpkg.TerritoryChunk, debit Debit, done func(id int64, bank *modelpkg.ClanBank, err error)) {
	var (
		id   int64
		bank *modelpkg.ClanBank
	)
	m.do("insert_territory", func() error {
		for _, cur := range m.territories {
			if cur.Coord == t.Coord {
				return fmt.Errorf("territory %s: %w", t.Coord, ErrConflict)
			}
		}
		if !debit.Empty() {
			b, err := m.adjustLocked(BankChange{ClanID: debit.ClanID, Delta: debit.Amount.Neg(), At: t.ClaimedAt})
			if err != nil {
				return err
			}
			bank = &b
		}
		id = m.id()
		t.ID = id
		m.territories[id] = t
		return nil
	}, func(err error) { done(id, bank, err) })
}

func (m *Memory) DeleteTerritory(id int64, clanID string, done func(err error)) {
	m.do("delete_territory", func() error {
		t, ok := m.territories[id]
		if !ok || t.ClanID != clanID {
			return fmt.Errorf("territory %d: %w", id, ErrNotFound)
		}
		delete(m.territories, id)
		return nil
	}, done)
}

func (m *Memory) CreateWar(w modelpkg.War, debit Debit, done func(id int64, bank *modelpkg.ClanBank, err error)) {
	var (
		id   int64
		bank *modelpkg.ClanBank
	)
	m.do("create_war", func() error {
		if !debit.Empty() {
			b, err := m.adjustLocked(BankChange{ClanID: debit.ClanID, Delta: debit.Amount.Neg(), At: w.StartedAt})
			if err != nil {
				return err
			}
			bank = &b
		}
		id = m.id()
		w.ID = id
		m.wars[id] = w
		return nil
	}, func(err error) { done(id, bank, err) })
}

func (m *Memory) UpdateWarStatus(id int64, from, to modelpkg.WarStatus, done func(err error)) {
	m.do("update_war_status", func() error {
		w, ok := m.wars[id]
		if !ok || w.Status != from {
			return fmt.Errorf("war %d not %s: %w", id, from, ErrConflict)
		}
		w.Status = to
		m.wars[id] = w
		return nil
	}, done)
}

func (m *Memory) CreateSiege(s modelpkg.Siege, done func(id int64, err error)) {
	var id int64
	m.do("create_siege", func() error {
		w, ok := m.wars[s.WarID]
		if !ok || w.Status != modelpkg.WarDeclared {
			return fmt.Errorf("war %d not declared: %w", s.WarID, ErrConflict)
		}
		for _, cur := range m.sieges {
			if cur.TerritoryID == s.TerritoryID && cur.Status == modelpkg.SiegeActive {
				return fmt.Errorf("territory %d: %w", s.TerritoryID, ErrConflict)
			}
		}
		w.Status = modelpkg.WarSiegeActive
		m.wars[w.ID] = w
		id = m.id()
		s.ID = id
		s.Status = modelpkg.SiegeActive
		if s.CheckpointAt.IsZero() {
			s.CheckpointAt = s.StartedAt
		}
		s.Attackers, s.Defenders = nil, nil
		m.sieges[id] = s
		return nil
	}, func(err error) { done(id, err) })
}

func (m *Memory) ResolveSiege(r SiegeResolution, done func(err error)) {
	m.do("resolve_siege", func() error {
		s, ok := m.sieges[r.SiegeID]
		if !ok || s.Status != modelpkg.SiegeActive {
			return fmt.Errorf("siege %d not active: %w", r.SiegeID, ErrConflict)
		}
		if r.Transfer != nil {
			t, ok := m.territories[r.Transfer.TerritoryID]
			if !ok {
				return fmt.Errorf("territory %d: %w", r.Transfer.TerritoryID, ErrNotFound)
			}
			t.ClanID = r.Transfer.ClanID
			t.ClaimedAt = r.Transfer.At
			m.territories[t.ID] = t
		}
		s.Status, s.Remaining, s.AttackerHeld, s.DefenderHeld = r.Status, r.Remaining, r.AttackerHeld, r.DefenderHeld
		m.sieges[s.ID] = s
		if w, ok := m.wars[r.WarID]; ok {
			w.Status = r.WarStatus
			m.wars[w.ID] = w
		}
		return nil
	}, done)
}

func (m *Memory) CheckpointSiege(c SiegeCheckpoint, done func(err error)) {
	m.do("checkpoint_siege", func() error {
		s, ok := m.sieges[c.SiegeID]
		if !ok || s.Status != modelpkg.SiegeActive {
			return nil
		}
		s.Remaining, s.AttackerHeld, s.DefenderHeld = c.Remaining, c.AttackerHeld, c.DefenderHeld
		s.EndsAt, s.Paused, s.CheckpointAt = c.EndsAt, c.Paused, c.At
		m.sieges[c.SiegeID] = s
		return nil
	}, done)
}

func (m *Memory) AdjustBank(c BankChange, done func(bank modelpkg.ClanBank, err error)) {
	var bank modelpkg.ClanBank
	m.do("adjust_bank", func() error {
		var err error
		bank, err = m.adjustLocked(c)
		return err
	}, func(err error) { done(bank, err) })
}

func (m *Memory) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var st State
	for _, t := range m.territories {
		st.Territories = append(st.Territories, t)
	}
	for _, w := range m.wars {
		if w.Status.Live() {
			st.Wars = append(st.Wars, w)
		}
	}
	for _, s := range m.sieges {
		if s.Status == modelpkg.SiegeActive {
			st.Sieges = append(st.Sieges, s)
		}
	}
	for _, b := range m.banks {
		st.Banks = append(st.Banks, b)
	}
	sort.Slice(st.Territories, func(i, j int) bool { return st.Territories[i].ID < st.Territories[j].ID })
	sort.Slice(st.Wars, func(i, j int) bool { return st.Wars[i].ID < st.Wars[j].ID })
	sort.Slice(st.Sieges, func(i, j int) bool { return st.Sieges[i].ID < st.Sieges[j].ID })
	sort.Slice(st.Banks, func(i, j int) bool { return st.Banks[i].ClanID < st.Banks[j].ClanID })
	return st, nil
}

// War returns the stored copy of a war, for assertions.
func (m *Memory) War(id int64) (modelpkg.War, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wars[id]
	return w, ok
}

// Siege returns the stored copy of a siege, for assertions.
func (m *Memory) Siege(id int64) (modelpkg.Siege, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sieges[id]
	return s, ok
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
