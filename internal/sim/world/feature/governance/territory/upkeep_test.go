package territory

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	maintenancepkg "warfront.gg/internal/sim/world/feature/governance/maintenance"
)

func TestMaintenanceCost_FourChunks(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 4; i++ {
		if got := f.claim(t, "a-lead", chunk(i, 0)); got.Result != Success {
			t.Fatalf("claim %d: %s", i, got.Result)
		}
	}
	if got := f.m.GetMaintenanceCost("A"); !got.Equal(decimal.RequireFromString("506.25")) {
		t.Fatalf("cost: got %s want 506.25", got)
	}
	if got := f.m.GetMaintenanceCost("B"); !got.IsZero() {
		t.Fatalf("no territory, no upkeep: %s", got)
	}
}

func TestSweepMaintenance_PaysAndStamps(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 4; i++ {
		f.claim(t, "a-lead", chunk(i, 0))
	}
	f.fund(t, "A", 2000)

	if n := f.m.SweepMaintenance(); n != 1 {
		t.Fatalf("billed: %d", n)
	}
	f.q.drain()
	if bal := f.m.Ledger().BalanceOf("A"); !bal.Equal(decimal.RequireFromString("1493.75")) {
		t.Fatalf("balance: %s", bal)
	}
	if got := f.m.Ledger().Get("A").LastMaintenance; !got.Equal(f.now) {
		t.Fatalf("last maintenance: %s", got)
	}
	// Not due again until the interval passes.
	if n := f.m.SweepMaintenance(); n != 0 {
		t.Fatalf("billed twice: %d", n)
	}
	f.now = f.now.Add(24 * time.Hour)
	if n := f.m.SweepMaintenance(); n != 1 {
		t.Fatalf("next period: %d", n)
	}
	f.q.drain()
	if got := f.m.DelinquencyStage("A"); got != maintenancepkg.StageOK {
		t.Fatalf("stage: %d", got)
	}
}

func TestSweepMaintenance_UnpaidEscalates(t *testing.T) {
	f := newFixture(t, nil)
	f.claim(t, "a-lead", chunk(0, 0))
	f.fund(t, "A", 10)

	var hooked []int
	f.m.SetUnpaidHook(func(clanID string, cost decimal.Decimal, stage int) {
		if clanID != "A" || !cost.Equal(decimal.NewFromInt(150)) {
			t.Fatalf("hook args: %s %s", clanID, cost)
		}
		hooked = append(hooked, stage)
	})

	for i := 0; i < 3; i++ {
		f.m.SweepMaintenance()
		f.q.drain()
		f.now = f.now.Add(24 * time.Hour)
	}
	want := []int{maintenancepkg.StageLate, maintenancepkg.StageUnprotected, maintenancepkg.StageUnprotected}
	if len(hooked) != len(want) {
		t.Fatalf("hook calls: %v", hooked)
	}
	for i := range want {
		if hooked[i] != want[i] {
			t.Fatalf("stages: got %v want %v", hooked, want)
		}
	}
	if bal := f.m.Ledger().BalanceOf("A"); !bal.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unpaid upkeep must not touch the balance: %s", bal)
	}

	f.fund(t, "A", 1000)
	f.m.SweepMaintenance()
	f.q.drain()
	if got := f.m.DelinquencyStage("A"); got != maintenancepkg.StageOK {
		t.Fatalf("payment resets stage: %d", got)
	}
}

func TestSweepMaintenance_FailureIsolatedPerClan(t *testing.T) {
	f := newFixture(t, nil)
	f.claim(t, "a-lead", chunk(0, 0))
	f.claim(t, "b-lead", chunk(1, 0))
	f.fund(t, "A", 500)
	f.fund(t, "B", 500)

	calls := 0
	f.mem.SetFail(func(op string) error {
		if op != "adjust_bank" {
			return nil
		}
		calls++
		if calls == 1 {
			return errors.New("io error")
		}
		return nil
	})
	if n := f.m.SweepMaintenance(); n != 2 {
		t.Fatalf("billed: %d", n)
	}
	f.q.drain()

	// Clans are swept in id order: A failed, B paid.
	if bal := f.m.Ledger().BalanceOf("A"); !bal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("A balance: %s", bal)
	}
	if bal := f.m.Ledger().BalanceOf("B"); !bal.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("B balance: %s", bal)
	}
	// A is retried on the next sweep since its period was never closed.
	if n := f.m.SweepMaintenance(); n != 1 {
		t.Fatalf("retry billed: %d", n)
	}
	f.q.drain()
	if bal := f.m.Ledger().BalanceOf("A"); !bal.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("A balance after retry: %s", bal)
	}
}
