// Package world is the authoritative world-mutation goroutine. Every manager call,
// every storage completion and every session event runs on the loop started by Run
// (or driven by StepOnce in tests); nothing here is safe to touch from elsewhere
// except Post and Stop.
package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/tuning"
	bankpkg "warfront.gg/internal/sim/world/feature/economy/bank"
	claimspkg "warfront.gg/internal/sim/world/feature/governance/claims"
	"warfront.gg/internal/sim/world/feature/governance/territory"
	"warfront.gg/internal/sim/world/feature/warfare"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Auditor receives one entry per territory or war decision.
type Auditor interface {
	WriteAudit(e modelpkg.AuditEntry) error
}

type Deps struct {
	Tuning tuning.Tuning
	Clans  clans.Directory
	Log    *zap.Logger
	Audit  Auditor
	Now    func() time.Time
}

type World struct {
	cfg    Config
	tuning tuning.Tuning
	clans  clans.Directory
	log    *zap.Logger
	audit  Auditor
	now    func() time.Time

	tasks    chan func()
	stop     chan struct{}
	stopOnce sync.Once
	jobs     []*job
	backlog  []func()

	store store.Gateway
	terr  *territory.Manager
	war   *warfare.Manager

	sessions map[string]*Session
	blocks   map[modelpkg.BlockPos]string
	markers  map[modelpkg.BlockPos]bool
	// altars are marker positions whose ritual is still channeling.
	altars map[modelpkg.BlockPos]string
}

func New(cfg Config, d Deps) *World {
	cfg.applyDefaults()
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &World{
		cfg:      cfg,
		tuning:   d.Tuning,
		clans:    d.Clans,
		log:      d.Log.Named("world"),
		audit:    d.Audit,
		now:      d.Now,
		tasks:    make(chan func(), cfg.TaskQueue),
		stop:     make(chan struct{}),
		sessions: map[string]*Session{},
		blocks:   map[modelpkg.BlockPos]string{},
		markers:  map[modelpkg.BlockPos]bool{},
		altars:   map[modelpkg.BlockPos]string{},
	}
}

// Bootstrap wires the managers to gw and restores persisted state. The gateway must
// have been opened with this World as its Poster. Call once, before Run.
func (w *World) Bootstrap(ctx context.Context, gw store.Gateway) error {
	if w.store != nil {
		return fmt.Errorf("world %s already bootstrapped", w.cfg.ID)
	}
	st, err := gw.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	w.store = gw

	var audit territory.Auditor
	var waudit warfare.Auditor
	if w.audit != nil {
		audit, waudit = w.audit, w.audit
	}
	w.terr = territory.NewManager(territory.ConfigFrom(w.tuning), territory.Deps{
		Cache:  claimspkg.NewCache(),
		Ledger: bankpkg.NewLedger(w.now),
		Clans:  w.clans,
		Store:  gw,
		Log:    w.log,
		Audit:  audit,
		Now:    w.now,
	})
	w.war = warfare.NewManager(warfare.ConfigFrom(w.tuning), warfare.Deps{
		Territories: w.terr,
		Ledger:      w.terr.Ledger(),
		Clans:       w.clans,
		Store:       gw,
		Host:        w,
		Log:         w.log,
		Audit:       waudit,
		Now:         w.now,
	})
	w.terr.SetWarzone(w.war)
	w.terr.SetUnpaidHook(w.onUnpaid)

	w.terr.Restore(st.Territories, st.Banks)
	w.war.Restore(st.Wars, st.Sieges)

	w.Every(w.cfg.TickInterval, w.war.Tick)
	w.Every(w.cfg.SweepInterval, func(now time.Time) {
		w.war.Sweep(now)
		w.terr.SweepMaintenance()
	})

	w.log.Info("world restored",
		zap.String("world", w.cfg.ID),
		zap.Int("territories", len(st.Territories)),
		zap.Int("wars", len(st.Wars)),
		zap.Int("sieges", len(st.Sieges)),
		zap.Int("banks", len(st.Banks)),
	)
	return nil
}

func (w *World) onUnpaid(clanID string, cost decimal.Decimal, stage int) {
	msg := fmt.Sprintf("your clan could not pay %s upkeep (delinquency stage %d)", cost.StringFixed(2), stage)
	for _, s := range w.sortedSessions() {
		if ref := w.clans.ClanOf(s.Participant.ID); ref != nil && ref.ID == clanID {
			w.Notify(s.Participant.ID, msg)
		}
	}
}

func (w *World) ID() string { return w.cfg.ID }

func (w *World) Config() Config { return w.cfg }

func (w *World) Territory() *territory.Manager { return w.terr }

func (w *World) Warfare() *warfare.Manager { return w.war }
