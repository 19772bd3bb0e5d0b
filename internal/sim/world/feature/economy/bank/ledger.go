// Package bank keeps per-clan balances in memory. Balances never go negative and
// withdrawals are all-or-nothing. Idempotency is the caller's concern.
package bank

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

var ErrNonPositiveAmount = errors.New("bank: amount must be positive")

type Ledger struct {
	mu    sync.Mutex
	now   func() time.Time
	banks map[string]*modelpkg.ClanBank
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now, banks: map[string]*modelpkg.ClanBank{}}
}

func (l *Ledger) getLocked(clanID string) *modelpkg.ClanBank {
	b := l.banks[clanID]
	if b == nil {
		b = &modelpkg.ClanBank{ClanID: clanID, Balance: decimal.Zero, UpdatedAt: l.now()}
		l.banks[clanID] = b
	}
	return b
}

// BalanceOf returns the clan's balance, creating an empty account on first sight.
func (l *Ledger) BalanceOf(clanID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(clanID).Balance
}

func (l *Ledger) Get(clanID string) modelpkg.ClanBank {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.getLocked(clanID)
}

func (l *Ledger) Deposit(clanID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.getLocked(clanID)
	b.Balance = b.Balance.Add(amount)
	b.UpdatedAt = l.now()
	return b.Balance, nil
}

// Withdraw debits amount only if the balance covers it. State is untouched on failure.
func (l *Ledger) Withdraw(clanID string, amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.getLocked(clanID)
	if b.Balance.LessThan(amount) {
		return false
	}
	b.Balance = b.Balance.Sub(amount)
	b.UpdatedAt = l.now()
	return true
}

func (l *Ledger) HasEnough(clanID string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(clanID).Balance.GreaterThanOrEqual(amount)
}

// Set mirrors a balance confirmed by storage. Negative values are clamped to zero.
func (l *Ledger) Set(clanID string, balance decimal.Decimal) {
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.getLocked(clanID)
	b.Balance = balance
	b.UpdatedAt = l.now()
}

func (l *Ledger) MarkMaintained(clanID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.getLocked(clanID)
	b.LastMaintenance = at
	b.UpdatedAt = l.now()
}

// Load replaces all accounts with rows read from storage.
func (l *Ledger) Load(rows []modelpkg.ClanBank) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.banks = make(map[string]*modelpkg.ClanBank, len(rows))
	for i := range rows {
		b := rows[i]
		if b.Balance.IsNegative() {
			b.Balance = decimal.Zero
		}
		l.banks[b.ClanID] = &b
	}
}

func (l *Ledger) Snapshot() []modelpkg.ClanBank {
	l.mu.Lock()
	out := make([]modelpkg.ClanBank, 0, len(l.banks))
	for _, b := range l.banks {
		out = append(out, *b)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClanID < out[j].ClanID })
	return out
}
