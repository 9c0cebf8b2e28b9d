package log

import (
	"testing"
	"time"

	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/world"
)

func TestSignalLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewSignalLogger(dir, 16)
	l.Handle("A1", 3, events.Pickup{SourceID: "S1", Item: "PLATE"})
	l.Handle("A1", 9, events.Stumble{Dropped: []string{"PLATE"}})
	l.Handle("", 10, events.SplatterStart{SourceID: "S2"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []events.Record
	if err := ReadSignals(dir, func(r events.Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("ReadSignals: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("records: got %d want 3", len(got))
	}
	if got[0].Kind != events.KindPickup || got[0].Agent != "A1" || got[0].Tick != 3 {
		t.Fatalf("first record: %+v", got[0])
	}
	if got[2].Agent != "" || got[2].Kind != events.KindSplatterStart {
		t.Fatalf("world record: %+v", got[2])
	}
	if l.Dropped() != 0 || l.Failed() != 0 {
		t.Fatalf("dropped=%d failed=%d", l.Dropped(), l.Failed())
	}
}

func TestTickLogger_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 1, 2, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteTick(world.TickLogEntry{Tick: 0, Digest: "a"}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteTick(world.TickLogEntry{Tick: 1, Digest: "b"}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(dir+"/"+TicksPrefix, TicksPrefix)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected one file per hour, got %v", files)
	}
	var ticks []uint64
	if err := ReadTicks(dir, func(e world.TickLogEntry) error {
		ticks = append(ticks, e.Tick)
		return nil
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(ticks) != 2 || ticks[0] != 0 || ticks[1] != 1 {
		t.Fatalf("ticks: %v", ticks)
	}
}
