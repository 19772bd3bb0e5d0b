package store

import (
	"context"
	"database/sql"
	"fmt"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

// Import writes a bulk State into an empty database, keeping row ids. It is the
// restore path for territory snapshots and refuses to merge into existing data.
func (s *SQLite) Import(ctx context.Context, st State) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT (SELECT COUNT(*) FROM territories) + (SELECT COUNT(*) FROM wars) + (SELECT COUNT(*) FROM banks)`).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("import into non-empty database: %w", ErrConflict)
		}
		for _, t := range st.Territories {
			if _, err := tx.ExecContext(ctx, `INSERT INTO territories(id,world,cx,cz,clan_id,claimed_at) VALUES(?,?,?,?,?,?)`,
				t.ID, t.Coord.World, t.Coord.X, t.Coord.Z, t.ClanID, formatTime(t.ClaimedAt)); err != nil {
				return fmt.Errorf("import territory %s: %w", t.Coord, err)
			}
		}
		for _, w := range st.Wars {
			if _, err := tx.ExecContext(ctx, `INSERT INTO wars(id,aggressor,defender,started_at,window_ends_at,status) VALUES(?,?,?,?,?,?)`,
				w.ID, w.Aggressor, w.Defender, formatTime(w.StartedAt), formatTime(w.WindowEnds), string(w.Status)); err != nil {
				return fmt.Errorf("import war %d: %w", w.ID, err)
			}
		}
		for _, sg := range st.Sieges {
			status := sg.Status
			if status == "" {
				status = modelpkg.SiegeActive
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO sieges(id,war_id,territory_id,world,cx,cz,aggressor,defender,altar_x,altar_y,altar_z,started_at,ends_at,remaining,attacker_held,defender_held,paused_ms,checkpoint_at,status)
				VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				sg.ID, sg.WarID, sg.TerritoryID, sg.Coord.World, sg.Coord.X, sg.Coord.Z, sg.Aggressor, sg.Defender,
				sg.Altar.X, sg.Altar.Y, sg.Altar.Z, formatTime(sg.StartedAt), formatTime(sg.EndsAt),
				sg.Remaining, sg.AttackerHeld, sg.DefenderHeld, sg.Paused.Milliseconds(), formatTime(sg.CheckpointAt), string(status)); err != nil {
				return fmt.Errorf("import siege %d: %w", sg.ID, err)
			}
		}
		for _, b := range st.Banks {
			if _, err := tx.ExecContext(ctx, `INSERT INTO banks(clan_id,balance,last_maintenance,updated_at) VALUES(?,?,?,?)`,
				b.ClanID, b.Balance.String(), formatTime(b.LastMaintenance), formatTime(b.UpdatedAt)); err != nil {
				return fmt.Errorf("import bank %s: %w", b.ClanID, err)
			}
		}
		return nil
	})
}
