package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"dishrush.game/internal/persistence/indexdb"
	persistlog "dishrush.game/internal/persistence/log"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/world"
)

func main() {
	var (
		runDir    = flag.String("run", "", "run directory containing world.json, ticks/ and signals/")
		dataDir   = flag.String("data", "./data", "runtime data directory (used with -world)")
		worldID   = flag.String("world", "", "replay the latest run of this world when -run is empty")
		configDir = flag.String("configs", "./configs", "config directory")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		indexPath = flag.String("index", "", "rebuild a sqlite index at this path from the replay (optional)")
	)
	flag.Parse()

	if *runDir == "" && *worldID != "" {
		latest, err := persistlog.LatestRun(*dataDir, *worldID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		*runDir = latest
	}
	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run or -world")
		os.Exit(2)
	}

	meta, err := persistlog.ReadMeta(*runDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read run meta:", err)
		os.Exit(1)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	if meta.ItemsDigest != "" && meta.ItemsDigest != cats.Items.DefsDigest {
		fmt.Fprintf(os.Stderr, "items catalog changed since the run: run=%s configs=%s\n", meta.ItemsDigest, cats.Items.DefsDigest)
		os.Exit(1)
	}

	w, err := world.New(world.WorldConfig{ID: meta.WorldID, Seed: meta.Seed, Tuning: meta.Tuning}, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}

	replayed := map[events.Kind]int{}
	w.OnSignal(func(_ string, _ uint64, e events.Event) { replayed[e.Kind()]++ })

	var idx *indexdb.SQLiteIndex
	if *indexPath != "" {
		idx, err = indexdb.OpenSQLite(*indexPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, meta.Tuning); err != nil {
			fmt.Fprintln(os.Stderr, "index catalogs:", err)
		}
		w.SetTickLogger(idx)
		w.OnSignal(idx.Handle)
	}

	fmt.Printf("run world=%s seed=%d started=%s\n", meta.WorldID, meta.Seed, meta.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	res, err := persistlog.Replay(w, *runDir, persistlog.ReplayOptions{ToTick: *toTick})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks last=%d\n", res.Checked, res.LastTick)

	// The journal may hold signals past to_tick; compare only what was replayed.
	journaled := map[events.Kind]int{}
	err = persistlog.ReadSignals(*runDir, func(r events.Record) error {
		if r.Tick <= res.LastTick {
			journaled[r.Kind]++
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "read signals:", err)
	}
	printKinds(replayed, journaled)

	m := w.Metrics().Totals
	fmt.Printf("pickups=%d deliveries=%d dishes_cleaned=%d stumbles=%d dishes_dropped=%d impairments=%d\n",
		m.Pickups, m.Deliveries, m.DishesCleaned, m.Stumbles, m.DishesDropped, m.Impairments)

	if idx == nil {
		return
	}
	ctx := context.Background()
	if err := idx.Sync(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "index sync:", err)
		os.Exit(1)
	}
	sum, err := idx.Summary(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index summary:", err)
		os.Exit(1)
	}
	for _, a := range sum.Agents {
		fmt.Printf("agent %s (%s): inputs=%d pickups=%d deliveries=%d cleaned=%d stumbles=%d dropped=%d impaired=%d\n",
			a.AgentID, a.Name, a.Inputs, a.Pickups, a.Deliveries, a.DishesCleaned, a.Stumbles, a.DishesDropped, a.Impairments)
	}
}

// printKinds lists per-kind signal counts, flagging kinds where the replay
// and the live journal disagree (the journal drops on a full queue).
func printKinds(replayed, journaled map[events.Kind]int) {
	kinds := make([]string, 0, len(replayed))
	seen := map[events.Kind]bool{}
	for k := range replayed {
		kinds = append(kinds, string(k))
		seen[k] = true
	}
	for k := range journaled {
		if !seen[k] {
			kinds = append(kinds, string(k))
		}
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		r, j := replayed[events.Kind(k)], journaled[events.Kind(k)]
		mark := ""
		if r != j {
			mark = " (journal differs)"
		}
		fmt.Printf("  %-18s replayed=%d journaled=%d%s\n", k, r, j, mark)
	}
}
