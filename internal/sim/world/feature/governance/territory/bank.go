package territory

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// BankBalance returns the balance of the participant's clan.
func (m *Manager) BankBalance(p modelpkg.Participant) (decimal.Decimal, Outcome) {
	clan := m.clans.ClanOf(p.ID)
	if clan == nil {
		return decimal.Zero, fail(NoClan)
	}
	return m.ledger.BalanceOf(clan.ID), Outcome{Result: Success}
}

func (m *Manager) Deposit(p modelpkg.Participant, amount decimal.Decimal, done func(Outcome)) Outcome {
	return m.bankOp("DEPOSIT", p, amount, clans.PermBankDeposit, done)
}

func (m *Manager) Withdraw(p modelpkg.Participant, amount decimal.Decimal, done func(Outcome)) Outcome {
	return m.bankOp("WITHDRAW", p, amount, clans.PermBankWithdraw, done)
}

func (m *Manager) bankOp(action string, p modelpkg.Participant, amount decimal.Decimal, perm clans.Permission, done func(Outcome)) Outcome {
	clan := m.clans.ClanOf(p.ID)
	var clanID string
	if clan != nil {
		clanID = clan.ID
	}
	details := map[string]any{"amount": amount.String()}
	reject := func(o Outcome) Outcome {
		m.record(action, p.ID, clanID, nil, o, details)
		return finish(done, o)
	}

	if clan == nil {
		return reject(fail(NoClan))
	}
	if !m.clans.HasPermission(p.ID, clan.ID, perm) {
		return reject(fail(NoPermission))
	}
	if !amount.IsPositive() {
		return reject(fail(InvalidAmount))
	}
	delta := amount
	if perm == clans.PermBankWithdraw {
		if !m.ledger.HasEnough(clan.ID, amount) {
			return reject(fail(InsufficientFunds))
		}
		delta = amount.Neg()
	}

	now := m.now()
	m.store.AdjustBank(store.BankChange{ClanID: clan.ID, Delta: delta, At: now}, func(bank modelpkg.ClanBank, err error) {
		var out Outcome
		switch {
		case err == nil:
			m.ledger.Set(clan.ID, bank.Balance)
			out = Outcome{Result: Success}
		case errors.Is(err, store.ErrInsufficientFunds):
			out = fail(InsufficientFunds)
		default:
			m.log.Error("bank write failed",
				zap.String("op", action), zap.String("clan", clan.ID), zap.String("amount", amount.String()), zap.Error(err))
			out = fail(DatabaseError)
		}
		m.record(action, p.ID, clan.ID, nil, out, details)
		if done != nil {
			done(out)
		}
	})
	return Outcome{Result: Success}
}
