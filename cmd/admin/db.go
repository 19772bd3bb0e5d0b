package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"
)

var tableQueries = map[string]string{
	"territories": `SELECT id, world, cx, cz, clan_id, claimed_at FROM territories`,
	"wars":        `SELECT id, aggressor, defender, started_at, window_ends_at, status FROM wars`,
	"sieges":      `SELECT id, war_id, world, cx, cz, aggressor, defender, remaining, attacker_held, defender_held, status, started_at, ends_at FROM sieges`,
	"banks":       `SELECT clan_id, balance, last_maintenance, updated_at FROM banks`,
}

var clanFilter = map[string]string{
	"territories": `clan_id = ?`,
	"wars":        `(aggressor = ? OR defender = ?)`,
	"sieges":      `(aggressor = ? OR defender = ?)`,
	"banks":       `clan_id = ?`,
}

func dbCmd(args []string) {
	fs := pflag.NewFlagSet("db", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/warfront.sqlite)")
	clan := fs.String("clan", "", "clan id filter")
	limit := fs.Int("limit", 50, "result limit")
	_ = fs.Parse(args)

	table := "territories"
	if fs.NArg() > 0 {
		table = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "warfront.sqlite")
	}

	db, err := openDB(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := queryTable(db, table, *clan, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}

func openDB(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", path)
}

// queryTable returns up to limit rows of table as column->value maps.
func queryTable(db *sql.DB, table, clan string, limit int) ([]map[string]any, error) {
	q, ok := tableQueries[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	var args []any
	if clan != "" {
		q += " WHERE " + clanFilter[table]
		args = append(args, clan)
		if strings.Count(clanFilter[table], "?") == 2 {
			args = append(args, clan)
		}
	}
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY 1 LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
			} else {
				m[c] = vals[i]
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
