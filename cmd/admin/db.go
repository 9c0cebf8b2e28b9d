package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"dishrush.game/internal/persistence/indexdb"
	persistlog "dishrush.game/internal/persistence/log"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id; uses its latest run (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	agentID := fs.String("agent", "", "agent_id filter (signals)")
	kind := fs.String("kind", "", "signal kind filter (signals)")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		run, err := persistlog.LatestRun(*dataDir, *worldID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		path = filepath.Join(run, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	switch q {
	case "summary":
		idx, err := indexdb.OpenSQLite(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open:", err)
			os.Exit(1)
		}
		defer idx.Close()
		sum, err := idx.Summary(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, "summary:", err)
			os.Exit(1)
		}
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)

	case "signals":
		db, err := sql.Open("sqlite", path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open:", err)
			os.Exit(1)
		}
		defer db.Close()
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := db.Query(`SELECT tick,seq,agent_id,kind,payload FROM signals
			WHERE (? = '' OR agent_id = ?) AND (? = '' OR kind = ?)
			ORDER BY tick DESC, seq DESC LIMIT ?`, *agentID, *agentID, *kind, *kind, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64           `json:"tick"`
				Seq     int             `json:"seq"`
				AgentID string          `json:"agent_id,omitempty"`
				Kind    string          `json:"kind"`
				Payload json.RawMessage `json:"payload"`
			}
			var payload string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.AgentID, &r.Kind, &payload); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Payload = json.RawMessage(payload)
			_ = enc.Encode(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (want summary or signals)\n", q)
		os.Exit(2)
	}
}
