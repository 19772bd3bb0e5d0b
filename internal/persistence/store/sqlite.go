package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

type Options struct {
	Workers   int
	QueueSize int
	OpTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 5 * time.Second
	}
}

type SQLite struct {
	db   *sql.DB
	post Poster
	log  *zap.Logger
	opts Options

	pool *pool
	once sync.Once
}

var _ Gateway = (*SQLite)(nil)

func OpenSQLite(path string, post Poster, opts Options, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if post == nil {
		return nil, fmt.Errorf("nil poster")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite serializes writers anyway and per-connection pragmas stay applied.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{
		db:   db,
		post: post,
		log:  logger.Named("store"),
		opts: opts,
		pool: newPool(opts.Workers, opts.QueueSize),
	}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS territories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			clan_id TEXT NOT NULL,
			claimed_at TEXT NOT NULL,
			UNIQUE (world, cx, cz)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_territories_clan ON territories(clan_id);`,
		`CREATE TABLE IF NOT EXISTS wars (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggressor TEXT NOT NULL,
			defender TEXT NOT NULL,
			started_at TEXT NOT NULL,
			window_ends_at TEXT NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_wars_status ON wars(status);`,
		`CREATE TABLE IF NOT EXISTS sieges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			war_id INTEGER NOT NULL REFERENCES wars(id),
			territory_id INTEGER NOT NULL,
			world TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			aggressor TEXT NOT NULL,
			defender TEXT NOT NULL,
			altar_x INTEGER NOT NULL,
			altar_y INTEGER NOT NULL,
			altar_z INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ends_at TEXT NOT NULL,
			remaining REAL NOT NULL,
			attacker_held REAL NOT NULL DEFAULT 0,
			defender_held REAL NOT NULL DEFAULT 0,
			paused_ms INTEGER NOT NULL DEFAULT 0,
			checkpoint_at TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			resolved_at TEXT
		);`,
		// At most one ACTIVE siege per territory.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sieges_one_active ON sieges(territory_id) WHERE status = 'ACTIVE';`,
		`CREATE TABLE IF NOT EXISTS banks (
			clan_id TEXT PRIMARY KEY,
			balance TEXT NOT NULL,
			last_maintenance TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		s.pool.close()
		err = s.db.Close()
	})
	return err
}

func (s *SQLite) Stats() PoolStats { return s.pool.stats(s.opts.Workers) }

// DB exposes the handle for read-only tooling.
func (s *SQLite) DB() *sql.DB { return s.db }

// run executes work on the pool and posts complete back to the world goroutine.
func (s *SQLite) run(op string, work func(ctx context.Context) error, complete func(err error)) {
	err := s.pool.submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
		defer cancel()
		werr := work(ctx)
		if werr != nil && !isDomainErr(werr) {
			s.log.Error("store op failed", zap.String("op", op), zap.Error(werr))
		}
		s.post.Post(func() { complete(werr) })
	})
	if err != nil {
		s.log.Warn("store op rejected", zap.String("op", op), zap.Error(err))
		postLocal(s.post, func() { complete(err) })
	}
}

func isDomainErr(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNotFound)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func adjustBankTx(ctx context.Context, tx *sql.Tx, c BankChange) (modelpkg.ClanBank, error) {
	b := modelpkg.ClanBank{ClanID: c.ClanID, Balance: decimal.Zero}
	var balStr, maintStr string
	err := tx.QueryRowContext(ctx, `SELECT balance, last_maintenance FROM banks WHERE clan_id = ?`, c.ClanID).Scan(&balStr, &maintStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return b, err
	default:
		bal, perr := decimal.NewFromString(balStr)
		if perr != nil {
			return b, fmt.Errorf("bank %s: bad balance %q: %w", c.ClanID, balStr, perr)
		}
		b.Balance = bal
		b.LastMaintenance = parseTime(maintStr)
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
	_, err = tx.ExecContext(ctx, `INSERT INTO banks(clan_id,balance,last_maintenance,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(clan_id) DO UPDATE SET balance=excluded.balance, last_maintenance=excluded.last_maintenance, updated_at=excluded.updated_at`,
		b.ClanID, b.Balance.String(), formatTime(b.LastMaintenance), formatTime(b.UpdatedAt))
	return b, err
}

func debitTx(ctx context.Context, tx *sql.Tx, d Debit, at time.Time) (*modelpkg.ClanBank, error) {
	if d.Empty() {
		return nil, nil
	}
	b, err := adjustBankTx(ctx, tx, BankChange{ClanID: d.ClanID, Delta: d.Amount.Neg(), At: at})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLite) InsertTerritory(t modelpkg.TerritoryChunk, debit Debit, done func(id int64, bank *modelpkg.ClanBank, err error)) {
	var (
		id   int64
		bank *modelpkg.ClanBank
	)
	s.run("insert_territory", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var err error
			if bank, err = debitTx(ctx, tx, debit, t.ClaimedAt); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `INSERT INTO territories(world,cx,cz,clan_id,claimed_at) VALUES(?,?,?,?,?)`,
				t.Coord.World, t.Coord.X, t.Coord.Z, t.ClanID, formatTime(t.ClaimedAt))
			if err != nil {
				if isConstraintError(err) {
					return fmt.Errorf("territory %s: %w", t.Coord, ErrConflict)
				}
				return err
			}
			id, err = res.LastInsertId()
			return err
		})
	}, func(err error) { done(id, bank, err) })
}

func (s *SQLite) DeleteTerritory(id int64, clanID string, done func(err error)) {
	s.run("delete_territory", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM territories WHERE id = ? AND clan_id = ?`, id, clanID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("territory %d: %w", id, ErrNotFound)
		}
		return nil
	}, done)
}

func (s *SQLite) CreateWar(w modelpkg.War, debit Debit, done func(id int64, bank *modelpkg.ClanBank, err error)) {
	var (
		id   int64
		bank *modelpkg.ClanBank
	)
	s.run("create_war", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var err error
			if bank, err = debitTx(ctx, tx, debit, w.StartedAt); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `INSERT INTO wars(aggressor,defender,started_at,window_ends_at,status) VALUES(?,?,?,?,?)`,
				w.Aggressor, w.Defender, formatTime(w.StartedAt), formatTime(w.WindowEnds), string(w.Status))
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		})
	}, func(err error) { done(id, bank, err) })
}

func (s *SQLite) UpdateWarStatus(id int64, from, to modelpkg.WarStatus, done func(err error)) {
	s.run("update_war_status", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `UPDATE wars SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("war %d not %s: %w", id, from, ErrConflict)
		}
		return nil
	}, done)
}

func (s *SQLite) CreateSiege(sg modelpkg.Siege, done func(id int64, err error)) {
	var id int64
	s.run("create_siege", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `UPDATE wars SET status = ? WHERE id = ? AND status = ?`,
				string(modelpkg.WarSiegeActive), sg.WarID, string(modelpkg.WarDeclared))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("war %d not declared: %w", sg.WarID, ErrConflict)
			}
			checkpointAt := sg.CheckpointAt
			if checkpointAt.IsZero() {
				checkpointAt = sg.StartedAt
			}
			res, err = tx.ExecContext(ctx, `INSERT INTO sieges(war_id,territory_id,world,cx,cz,aggressor,defender,altar_x,altar_y,altar_z,started_at,ends_at,remaining,attacker_held,defender_held,paused_ms,checkpoint_at,status)
				VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				sg.WarID, sg.TerritoryID, sg.Coord.World, sg.Coord.X, sg.Coord.Z, sg.Aggressor, sg.Defender,
				sg.Altar.X, sg.Altar.Y, sg.Altar.Z, formatTime(sg.StartedAt), formatTime(sg.EndsAt),
				sg.Remaining, sg.AttackerHeld, sg.DefenderHeld, sg.Paused.Milliseconds(), formatTime(checkpointAt), string(modelpkg.SiegeActive))
			if err != nil {
				if isConstraintError(err) {
					return fmt.Errorf("territory %d: %w", sg.TerritoryID, ErrConflict)
				}
				return err
			}
			id, err = res.LastInsertId()
			return err
		})
	}, func(err error) { done(id, err) })
}

func (s *SQLite) ResolveSiege(r SiegeResolution, done func(err error)) {
	s.run("resolve_siege", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `UPDATE sieges SET status = ?, remaining = ?, attacker_held = ?, defender_held = ?, resolved_at = ?
				WHERE id = ? AND status = ?`,
				string(r.Status), r.Remaining, r.AttackerHeld, r.DefenderHeld, formatTime(r.At), r.SiegeID, string(modelpkg.SiegeActive))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("siege %d not active: %w", r.SiegeID, ErrConflict)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE wars SET status = ? WHERE id = ?`, string(r.WarStatus), r.WarID); err != nil {
				return err
			}
			if r.Transfer != nil {
				res, err := tx.ExecContext(ctx, `UPDATE territories SET clan_id = ?, claimed_at = ? WHERE id = ?`,
					r.Transfer.ClanID, formatTime(r.Transfer.At), r.Transfer.TerritoryID)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return fmt.Errorf("territory %d: %w", r.Transfer.TerritoryID, ErrNotFound)
				}
			}
			return nil
		})
	}, done)
}

func (s *SQLite) CheckpointSiege(c SiegeCheckpoint, done func(err error)) {
	s.run("checkpoint_siege", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `UPDATE sieges SET remaining = ?, attacker_held = ?, defender_held = ?, ends_at = ?, paused_ms = ?, checkpoint_at = ?
			WHERE id = ? AND status = ?`,
			c.Remaining, c.AttackerHeld, c.DefenderHeld, formatTime(c.EndsAt), c.Paused.Milliseconds(), formatTime(c.At),
			c.SiegeID, string(modelpkg.SiegeActive))
		return err
	}, done)
}

func (s *SQLite) AdjustBank(c BankChange, done func(bank modelpkg.ClanBank, err error)) {
	var bank modelpkg.ClanBank
	s.run("adjust_bank", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var err error
			bank, err = adjustBankTx(ctx, tx, c)
			return err
		})
	}, func(err error) { done(bank, err) })
}

func (s *SQLite) Load(ctx context.Context) (State, error) {
	var st State

	rows, err := s.db.QueryContext(ctx, `SELECT id, world, cx, cz, clan_id, claimed_at FROM territories ORDER BY id`)
	if err != nil {
		return st, fmt.Errorf("load territories: %w", err)
	}
	for rows.Next() {
		var t modelpkg.TerritoryChunk
		var claimed string
		if err := rows.Scan(&t.ID, &t.Coord.World, &t.Coord.X, &t.Coord.Z, &t.ClanID, &claimed); err != nil {
			rows.Close()
			return st, fmt.Errorf("load territories: %w", err)
		}
		t.ClaimedAt = parseTime(claimed)
		st.Territories = append(st.Territories, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("load territories: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, aggressor, defender, started_at, window_ends_at, status FROM wars WHERE status IN (?, ?) ORDER BY id`,
		string(modelpkg.WarDeclared), string(modelpkg.WarSiegeActive))
	if err != nil {
		return st, fmt.Errorf("load wars: %w", err)
	}
	for rows.Next() {
		var w modelpkg.War
		var started, ends, status string
		if err := rows.Scan(&w.ID, &w.Aggressor, &w.Defender, &started, &ends, &status); err != nil {
			rows.Close()
			return st, fmt.Errorf("load wars: %w", err)
		}
		w.StartedAt, w.WindowEnds, w.Status = parseTime(started), parseTime(ends), modelpkg.WarStatus(status)
		st.Wars = append(st.Wars, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("load wars: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, war_id, territory_id, world, cx, cz, aggressor, defender, altar_x, altar_y, altar_z,
		started_at, ends_at, remaining, attacker_held, defender_held, paused_ms, checkpoint_at FROM sieges WHERE status = ? ORDER BY id`, string(modelpkg.SiegeActive))
	if err != nil {
		return st, fmt.Errorf("load sieges: %w", err)
	}
	for rows.Next() {
		var sg modelpkg.Siege
		var started, ends, checkpoint string
		var pausedMS int64
		if err := rows.Scan(&sg.ID, &sg.WarID, &sg.TerritoryID, &sg.Coord.World, &sg.Coord.X, &sg.Coord.Z, &sg.Aggressor, &sg.Defender,
			&sg.Altar.X, &sg.Altar.Y, &sg.Altar.Z, &started, &ends, &sg.Remaining, &sg.AttackerHeld, &sg.DefenderHeld, &pausedMS, &checkpoint); err != nil {
			rows.Close()
			return st, fmt.Errorf("load sieges: %w", err)
		}
		sg.Altar.World = sg.Coord.World
		sg.StartedAt, sg.EndsAt, sg.Status = parseTime(started), parseTime(ends), modelpkg.SiegeActive
		sg.Paused, sg.CheckpointAt = time.Duration(pausedMS)*time.Millisecond, parseTime(checkpoint)
		st.Sieges = append(st.Sieges, sg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("load sieges: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT clan_id, balance, last_maintenance, updated_at FROM banks ORDER BY clan_id`)
	if err != nil {
		return st, fmt.Errorf("load banks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b modelpkg.ClanBank
		var bal, maint, updated string
		if err := rows.Scan(&b.ClanID, &bal, &maint, &updated); err != nil {
			return st, fmt.Errorf("load banks: %w", err)
		}
		if b.Balance, err = decimal.NewFromString(bal); err != nil {
			return st, fmt.Errorf("load banks: clan %s: %w", b.ClanID, err)
		}
		b.LastMaintenance, b.UpdatedAt = parseTime(maint), parseTime(updated)
		st.Banks = append(st.Banks, b)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("load banks: %w", err)
	}
	return st, nil
}
