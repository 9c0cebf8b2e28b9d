package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "dishrush.game/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	worlds := []string{*worldID}
	if *worldID == "" {
		entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		worlds = worlds[:0]
		for _, e := range entries {
			if e.IsDir() {
				worlds = append(worlds, e.Name())
			}
		}
	}
	for _, id := range worlds {
		runs, err := persistlog.Runs(*dataDir, id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "runs:", err)
			continue
		}
		for _, run := range runs {
			meta, err := persistlog.ReadMeta(run)
			if err != nil {
				fmt.Printf("%s\t%s\t(unreadable: %v)\n", id, filepath.Base(run), err)
				continue
			}
			fmt.Printf("%s\t%s\tseed=%d\ttick_rate=%d\n", id, filepath.Base(run), meta.Seed, meta.Tuning.TickRateHz)
		}
	}
}
