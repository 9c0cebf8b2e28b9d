package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	"dishrush.game/internal/sim/world"
	"dishrush.game/internal/sim/worldtest"
)

func openTemp(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "world.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	s.Handle("A1", 2, events.Pickup{SourceID: "S1", Item: "PLATE"})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropSignalTotal != 1 {
		t.Fatalf("DropSignalTotal=%d want=1", st.DropSignalTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_Summary(t *testing.T) {
	idx := openTemp(t)

	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   0,
		Joins:  []world.RecordedJoin{{AgentID: "A1", Name: "alice"}, {AgentID: "A2", Name: "bob"}},
		Digest: "d0",
	})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick: 1,
		Inputs: []world.RecordedInput{
			{AgentID: "A1", Input: protocol.InputMsg{Kind: protocol.InputInteractPress}},
			{AgentID: "A1", Input: protocol.InputMsg{Kind: protocol.InputInteractRelease}},
			{AgentID: "A2", Input: protocol.InputMsg{Kind: protocol.InputMove, X: 1}},
		},
		Digest: "d1",
	})
	idx.Handle("A1", 1, events.Pickup{SourceID: "S1", Item: "PLATE"})
	idx.Handle("A1", 1, events.Pickup{SourceID: "S2", Item: "MUG"})
	idx.Handle("A1", 5, events.Delivered{Items: []string{"PLATE", "MUG"}})
	idx.Handle("A2", 6, events.Stumble{Dropped: []string{"BOWL", "BOWL", "BEER"}})
	idx.Handle("", 6, events.SplatterStart{SourceID: "S3"})
	idx.Handle("A2", 6, events.Impaired{SourceID: "S3", TargetID: "A2"})

	ctx := context.Background()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	sum, err := idx.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Ticks != 2 || sum.LastTick != 1 {
		t.Fatalf("ticks=%d last=%d want 2/1", sum.Ticks, sum.LastTick)
	}
	if sum.Signals[string(events.KindPickup)] != 2 || sum.Signals[string(events.KindSplatterStart)] != 1 {
		t.Fatalf("signal counts: %+v", sum.Signals)
	}
	if len(sum.Agents) != 2 {
		t.Fatalf("agents=%+v want 2", sum.Agents)
	}
	a1, a2 := sum.Agents[0], sum.Agents[1]
	if a1.AgentID != "A1" || a1.Name != "alice" || a1.Pickups != 2 || a1.Deliveries != 1 || a1.DishesCleaned != 2 || a1.Inputs != 2 {
		t.Fatalf("A1 summary: %+v", a1)
	}
	if a2.AgentID != "A2" || a2.Name != "bob" || a2.Stumbles != 1 || a2.DishesDropped != 3 || a2.Impairments != 1 || a2.Inputs != 1 {
		t.Fatalf("A2 summary: %+v", a2)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	idx := openTemp(t)
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	// Upserting twice replaces rather than duplicates.
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs again: %v", err)
	}
	ctx := context.Background()
	d, err := idx.CatalogDigest(ctx, "items_defs")
	if err != nil {
		t.Fatalf("CatalogDigest: %v", err)
	}
	if d != cats.Items.DefsDigest {
		t.Fatalf("items_defs digest=%q want %q", d, cats.Items.DefsDigest)
	}
	if d, err := idx.CatalogDigest(ctx, "tuning"); err != nil || d == "" {
		t.Fatalf("tuning digest=%q err=%v", d, err)
	}
}

func TestSQLiteIndex_FromWorld(t *testing.T) {
	idx := openTemp(t)
	h := worldtest.NewQuietHarness(t, nil)
	h.W.SetTickLogger(idx)
	h.W.OnSignal(idx.Handle)

	spawn := h.W.Tuning().Player.SpawnPos
	h.SpawnSource("PLATE", world.Vec2{spawn[0], spawn[1]})
	h.Press()
	h.Release()
	h.StepN(3)

	ctx := context.Background()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	sum, err := idx.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Ticks != 5 {
		t.Fatalf("ticks=%d want 5", sum.Ticks)
	}
	if len(sum.Agents) != 1 || sum.Agents[0].Pickups != 1 || sum.Agents[0].Inputs != 2 {
		t.Fatalf("agents=%+v", sum.Agents)
	}
}
