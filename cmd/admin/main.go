package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	persistlog "warfront.gg/internal/persistence/log"
	"warfront.gg/internal/transport/ws"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "db":
		dbCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "audit":
		auditCmd(args)
	case "token":
		tokenCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  db <territories|wars|sieges|banks>   query the live database
  snapshot <export|import|inspect>     territory snapshots
  audit                                print audit log entries
  token                                issue a HELLO token`)
}

func tokenCmd(args []string) {
	fs := pflag.NewFlagSet("token", pflag.ExitOnError)
	secret := fs.String("secret", os.Getenv("WARFRONT_JWT_SECRET"), "HS256 secret")
	pid := fs.String("participant", "", "participant id (token subject)")
	name := fs.String("name", "", "display name")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime (0 = no expiry)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*secret) == "" || strings.TrimSpace(*pid) == "" {
		fmt.Fprintln(os.Stderr, "missing --secret or --participant")
		os.Exit(2)
	}
	tok, err := ws.IssueToken([]byte(*secret), *pid, *name, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

func auditCmd(args []string) {
	fs := pflag.NewFlagSet("audit", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	action := fs.String("action", "", "action filter (CLAIM, DECLARE_WAR, ...)")
	clan := fs.String("clan", "", "clan id filter")
	failed := fs.Bool("failed", false, "only non-SUCCESS entries")
	_ = fs.Parse(args)

	files, err := persistlog.AuditFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit files:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, f := range files {
		entries, err := persistlog.ReadAudit(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", f, err)
			continue
		}
		for _, e := range entries {
			if *action != "" && !strings.EqualFold(e.Action, *action) {
				continue
			}
			if *clan != "" && e.ClanID != *clan {
				continue
			}
			if *failed && e.Result == "SUCCESS" {
				continue
			}
			_ = enc.Encode(e)
		}
	}
}
