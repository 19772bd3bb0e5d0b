package territory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/tuning"
	bankpkg "warfront.gg/internal/sim/world/feature/economy/bank"
	claimspkg "warfront.gg/internal/sim/world/feature/governance/claims"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// queue stands in for the world goroutine: store completions wait here until drain.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) Post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()
		if len(fns) == 0 {
			return
		}
		for _, fn := range fns {
			fn()
		}
	}
}

type fakeWarzone struct {
	zones   map[modelpkg.ChunkCoord]bool
	atWar   map[string]bool
	victory map[string]time.Time
}

func (f *fakeWarzone) IsWarzone(c modelpkg.ChunkCoord) bool { return f.zones[c] }
func (f *fakeWarzone) Contested(c modelpkg.ChunkCoord) bool { return f.zones[c] }
func (f *fakeWarzone) InActiveSiege(clanID string) bool     { return f.atWar[clanID] }
func (f *fakeWarzone) LastVictory(clanID string) (time.Time, bool) {
	t, ok := f.victory[clanID]
	return t, ok
}

type memAudit struct{ entries []modelpkg.AuditEntry }

func (a *memAudit) WriteAudit(e modelpkg.AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type fixture struct {
	q     *queue
	mem   *store.Memory
	reg   *clans.Registry
	m     *Manager
	wz    *fakeWarzone
	audit *memAudit
	now   time.Time
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		q:     &queue{},
		reg:   clans.NewRegistry(),
		wz:    &fakeWarzone{zones: map[modelpkg.ChunkCoord]bool{}, atWar: map[string]bool{}, victory: map[string]time.Time{}},
		audit: &memAudit{},
		now:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.mem = store.NewMemory(f.q)
	for _, c := range []struct{ id, name string }{{"A", "Alpha"}, {"B", "Bravo"}} {
		if err := f.reg.Create(c.id, c.name, c.id); err != nil {
			t.Fatalf("create clan: %v", err)
		}
	}
	mustMember(t, f.reg, "A", "a-lead", modelpkg.ClanLeader)
	mustMember(t, f.reg, "A", "a-off", modelpkg.ClanOfficer)
	mustMember(t, f.reg, "A", "a-mem", modelpkg.ClanMember)
	mustMember(t, f.reg, "B", "b-lead", modelpkg.ClanLeader)

	cfg := ConfigFrom(tuning.Defaults())
	if mutate != nil {
		mutate(&cfg)
	}
	clock := func() time.Time { return f.now }
	f.m = NewManager(cfg, Deps{
		Cache:  claimspkg.NewCache(),
		Ledger: bankpkg.NewLedger(clock),
		Clans:  f.reg,
		Store:  f.mem,
		Audit:  f.audit,
		Now:    clock,
	})
	f.m.SetWarzone(f.wz)
	return f
}

func mustMember(t *testing.T, reg *clans.Registry, clanID, pid string, role modelpkg.ClanRole) {
	t.Helper()
	if err := reg.AddMember(clanID, pid, role); err != nil {
		t.Fatalf("add member %s: %v", pid, err)
	}
}

func who(id string) modelpkg.Participant { return modelpkg.Participant{ID: id, Name: id} }

func chunk(x, z int) modelpkg.ChunkCoord { return modelpkg.ChunkCoord{World: "overworld", X: x, Z: z} }

// claim runs a claim to completion and returns the final outcome.
func (f *fixture) claim(t *testing.T, pid string, c modelpkg.ChunkCoord) Outcome {
	t.Helper()
	var final *Outcome
	f.m.ClaimTerritory(who(pid), c, func(o Outcome) { final = &o })
	f.q.drain()
	if final == nil {
		t.Fatalf("claim %s: done never called", c)
	}
	return *final
}

func (f *fixture) unclaim(t *testing.T, pid string, c modelpkg.ChunkCoord) Outcome {
	t.Helper()
	var final *Outcome
	f.m.UnclaimTerritory(who(pid), c, func(o Outcome) { final = &o })
	f.q.drain()
	if final == nil {
		t.Fatalf("unclaim %s: done never called", c)
	}
	return *final
}

func (f *fixture) fund(t *testing.T, clanID string, amount int64) {
	t.Helper()
	f.mem.AdjustBank(store.BankChange{ClanID: clanID, Delta: decimal.NewFromInt(amount), At: f.now}, func(b modelpkg.ClanBank, err error) {
		if err != nil {
			t.Fatalf("fund: %v", err)
		}
		f.m.Ledger().Set(clanID, b.Balance)
	})
	f.q.drain()
}

func TestClaim_SuccessAndUniqueness(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(1, 2)

	if got := f.claim(t, "a-lead", c); got.Result != Success {
		t.Fatalf("first claim: %s", got.Result)
	}
	if ref := f.m.GetOwningClan(c); ref == nil || ref.ID != "A" || ref.Name != "Alpha" {
		t.Fatalf("owner: %+v", ref)
	}
	if got := f.claim(t, "b-lead", c); got.Result != AlreadyClaimed {
		t.Fatalf("second claim: %s", got.Result)
	}
	if got := f.claim(t, "a-off", c); got.Result != AlreadyClaimed {
		t.Fatalf("own re-claim: %s", got.Result)
	}
	if n := f.m.GetTerritoryCount("A"); n != 1 {
		t.Fatalf("count: %d", n)
	}
}

func TestClaim_ValidationOrder(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxClaims = 1 })

	if got := f.claim(t, "stranger", chunk(0, 0)); got.Result != NoClan {
		t.Fatalf("no clan: %s", got.Result)
	}
	if got := f.claim(t, "a-mem", chunk(0, 0)); got.Result != NoPermission {
		t.Fatalf("member: %s", got.Result)
	}
	if got := f.claim(t, "a-lead", chunk(0, 0)); got.Result != Success {
		t.Fatalf("leader: %s", got.Result)
	}
	if got := f.claim(t, "a-lead", chunk(0, 1)); got.Result != OverLimit {
		t.Fatalf("cap: %s", got.Result)
	}
	// Ownership is checked before the cap.
	if got := f.claim(t, "a-lead", chunk(0, 0)); got.Result != AlreadyClaimed {
		t.Fatalf("owned before cap: %s", got.Result)
	}
}

func TestClaim_ConcurrentSameChunkOneWinner(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(5, 5)

	var results []Result
	f.m.ClaimTerritory(who("a-lead"), c, func(o Outcome) { results = append(results, o.Result) })
	f.m.ClaimTerritory(who("b-lead"), c, func(o Outcome) { results = append(results, o.Result) })
	f.q.drain()

	if len(results) != 2 {
		t.Fatalf("expected two results, got %v", results)
	}
	wins := 0
	for _, r := range results {
		if r == Success {
			wins++
		} else if r != AlreadyClaimed {
			t.Fatalf("unexpected result %s", r)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %v", results)
	}
}

func TestClaim_PendingClaimsCountTowardCap(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxClaims = 2 })
	var results []Result
	for i := 0; i < 3; i++ {
		f.m.ClaimTerritory(who("a-lead"), chunk(i, 0), func(o Outcome) { results = append(results, o.Result) })
	}
	f.q.drain()
	if len(results) != 3 || results[0] != OverLimit {
		// The third claim is rejected synchronously, so it reports first.
		t.Fatalf("results: %v", results)
	}
	if n := f.m.GetTerritoryCount("A"); n != 2 {
		t.Fatalf("count: %d", n)
	}
}

func TestClaim_StorageFailureReleasesReservation(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(9, 9)
	f.mem.SetFail(func(op string) error {
		if op == "insert_territory" {
			return errors.New("disk gone")
		}
		return nil
	})
	if got := f.claim(t, "a-lead", c); got.Result != DatabaseError {
		t.Fatalf("claim: %s", got.Result)
	}
	if f.m.Cache().IsClaimed(c) || f.m.Cache().Reserved(c) {
		t.Fatalf("cache must not keep a failed claim")
	}
	f.mem.SetFail(nil)
	if got := f.claim(t, "b-lead", c); got.Result != Success {
		t.Fatalf("retry: %s", got.Result)
	}
}

func TestClaim_CostDebitsBank(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ClaimCost = decimal.NewFromInt(100) })
	if got := f.claim(t, "a-lead", chunk(0, 0)); got.Result != InsufficientFunds {
		t.Fatalf("unfunded: %s", got.Result)
	}
	f.fund(t, "A", 150)
	if got := f.claim(t, "a-lead", chunk(0, 0)); got.Result != Success {
		t.Fatalf("funded: %s", got.Result)
	}
	if bal := f.m.Ledger().BalanceOf("A"); !bal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance: %s", bal)
	}
}

func TestUnclaim(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(3, 3)

	if got := f.unclaim(t, "a-lead", c); got.Result != NotTerritory {
		t.Fatalf("neutral: %s", got.Result)
	}
	if got := f.claim(t, "a-lead", c); got.Result != Success {
		t.Fatalf("claim: %s", got.Result)
	}
	if got := f.unclaim(t, "b-lead", c); got.Result != NotOwner {
		t.Fatalf("other clan: %s", got.Result)
	}
	if got := f.unclaim(t, "a-mem", c); got.Result != NotOwner {
		t.Fatalf("member: %s", got.Result)
	}

	f.wz.zones[c] = true
	if got := f.unclaim(t, "a-lead", c); got.Result != NotOwner || got.Detail == "" {
		t.Fatalf("under siege: %+v", got)
	}
	delete(f.wz.zones, c)

	if got := f.unclaim(t, "a-off", c); got.Result != Success {
		t.Fatalf("unclaim: %s", got.Result)
	}
	if f.m.Cache().IsClaimed(c) {
		t.Fatalf("chunk still owned")
	}
	// Idempotent: a second unclaim is a no-op on a neutral chunk.
	if got := f.unclaim(t, "a-off", c); got.Result != NotTerritory {
		t.Fatalf("second unclaim: %s", got.Result)
	}
}

func TestUnclaim_StorageFailureKeepsOwnership(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(4, 4)
	if got := f.claim(t, "a-lead", c); got.Result != Success {
		t.Fatalf("claim: %s", got.Result)
	}
	f.mem.SetFail(func(op string) error { return errors.New("locked") })
	if got := f.unclaim(t, "a-lead", c); got.Result != DatabaseError {
		t.Fatalf("unclaim: %s", got.Result)
	}
	if owner, ok := f.m.Cache().OwnerOf(c); !ok || owner != "A" || f.m.Cache().Reserved(c) {
		t.Fatalf("ownership lost after failed unclaim")
	}
}

func TestHasTerritoryPermission(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(7, 7)
	if !f.m.HasTerritoryPermission(who("b-lead"), c) {
		t.Fatalf("neutral chunk must be open")
	}
	f.claim(t, "a-lead", c)
	if !f.m.HasTerritoryPermission(who("a-mem"), c) {
		t.Fatalf("own clan must be allowed")
	}
	if f.m.HasTerritoryPermission(who("b-lead"), c) || f.m.HasTerritoryPermission(who("stranger"), c) {
		t.Fatalf("outsiders must be denied")
	}
	f.wz.zones[c] = true
	if !f.m.HasTerritoryPermission(who("b-lead"), c) {
		t.Fatalf("warzone must be open")
	}
}

func TestVulnerabilityAndState(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.SetMorale("A", 2)
	for i := 0; i < 2; i++ {
		f.claim(t, "a-lead", chunk(i, 0))
	}
	if f.m.IsClanVulnerable("A") {
		t.Fatalf("morale 2 with 2 chunks is not vulnerable")
	}
	if got := f.m.GetTerritoryState("A"); got != modelpkg.StateFortified {
		t.Fatalf("state: %s", got)
	}
	f.claim(t, "a-lead", chunk(2, 0))
	if !f.m.IsClanVulnerable("A") {
		t.Fatalf("morale 2 with 3 chunks is vulnerable")
	}
	if got := f.m.GetTerritoryState("A"); got != modelpkg.StateVulnerable {
		t.Fatalf("state: %s", got)
	}

	f.wz.victory["A"] = f.now.Add(-time.Hour)
	if got := f.m.GetTerritoryState("A"); got != modelpkg.StateVictorious {
		t.Fatalf("state after victory: %s", got)
	}
	f.wz.atWar["A"] = true
	if got := f.m.GetTerritoryState("A"); got != modelpkg.StateAtWar {
		t.Fatalf("siege takes precedence: %s", got)
	}
	delete(f.wz.atWar, "A")
	f.now = f.now.Add(48 * time.Hour)
	if got := f.m.GetTerritoryState("A"); got != modelpkg.StateVulnerable {
		t.Fatalf("victory bonus must lapse: %s", got)
	}
}

func TestInfoAndList(t *testing.T) {
	f := newFixture(t, nil)
	c := chunk(1, 1)
	if info := f.m.Info(c); info.Claimed {
		t.Fatalf("neutral chunk reported claimed")
	}
	f.claim(t, "a-lead", c)
	info := f.m.Info(c)
	if !info.Claimed || info.ClanName != "Alpha" || info.State == "" {
		t.Fatalf("info: %+v", info)
	}
	sum := f.m.List("A")
	if sum.Count != 1 || len(sum.Territories) != 1 || sum.ClanName != "Alpha" {
		t.Fatalf("list: %+v", sum)
	}
	if !sum.MaintenanceCost.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("cost for one chunk: %s", sum.MaintenanceCost)
	}
}

func TestAuditRecordsOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	f.claim(t, "a-lead", chunk(0, 0))
	f.claim(t, "stranger", chunk(0, 1))
	if len(f.audit.entries) != 2 {
		t.Fatalf("entries: %+v", f.audit.entries)
	}
	if f.audit.entries[0].Result != "SUCCESS" || f.audit.entries[1].Result != "NO_CLAN" {
		t.Fatalf("entries: %+v", f.audit.entries)
	}
	if f.audit.entries[1].Details["reason"] == nil {
		t.Fatalf("rejections carry a reason")
	}
}
