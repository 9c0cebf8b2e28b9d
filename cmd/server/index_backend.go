package main

import (
	"path/filepath"

	"dishrush.game/internal/persistence/indexdb"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	"dishrush.game/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Handle(agentID string, tick uint64, e events.Event)
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Stats() indexdb.IndexStats
	Close() error
}

// openRuntimeIndex returns nil when indexing is disabled. The index is a read
// model only and never affects the simulation.
func openRuntimeIndex(runDir string, disable bool) (runtimeIndex, error) {
	if disable {
		return nil, nil
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(runDir, "index", "world.sqlite"))
	if err != nil {
		return nil, err
	}
	return idx, nil
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
