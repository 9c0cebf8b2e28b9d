package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/tuning"
	"dishrush.game/internal/sim/world"
)

func replayConfig() world.WorldConfig {
	tn := tuning.Defaults()
	tn.Spawning.SpawnEveryMs = 200
	tn.Stability.AutoResolveChecks = true
	return world.WorldConfig{ID: "replay", Seed: 99, Tuning: tn}
}

func newReplayWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := world.New(replayConfig(), cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

// record runs a scripted session and journals it into dir.
func record(t *testing.T, dir string, ticks int) {
	t.Helper()
	w := newReplayWorld(t)
	tl := NewTickLogger(dir)
	w.SetTickLogger(tl)

	_, _ = w.StepOnce([]world.JoinRequest{{Name: "a"}, {Name: "b"}}, nil, nil)
	dirs := [][2]float64{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for i := 0; i < ticks; i++ {
		var ins []world.InputEnvelope
		if i%30 == 0 {
			d := dirs[(i/30)%4]
			ins = append(ins,
				world.InputEnvelope{AgentID: "A1", Input: protocol.InputMsg{Kind: protocol.InputMove, X: d[0], Y: d[1]}},
				world.InputEnvelope{AgentID: "A2", Input: protocol.InputMsg{Kind: protocol.InputMove, X: -d[0], Y: d[1]}},
			)
		}
		if i%9 == 0 {
			ins = append(ins, world.InputEnvelope{AgentID: "A1", Input: protocol.InputMsg{Kind: protocol.InputInteractPress}})
		}
		var leaves []string
		if i == ticks-10 {
			leaves = []string{"A2"}
		}
		_, _ = w.StepOnce(nil, leaves, ins)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
}

func TestReplay_VerifiesDigests(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, 400)

	res, err := Replay(newReplayWorld(t), dir, ReplayOptions{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Checked != 401 || res.LastTick != 400 {
		t.Fatalf("result=%+v want 401 ticks ending at 400", res)
	}

	res, err = Replay(newReplayWorld(t), dir, ReplayOptions{ToTick: 50})
	if err != nil {
		t.Fatalf("Replay to 50: %v", err)
	}
	if res.Checked != 51 || res.LastTick != 50 {
		t.Fatalf("partial result=%+v", res)
	}
}

func TestReplay_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, 100)

	// Rewrite the journal with one direction change removed.
	var entries []world.TickLogEntry
	if err := ReadTicks(dir, func(e world.TickLogEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	dropped := false
	for i := range entries {
		if entries[i].Tick <= 10 || len(entries[i].Inputs) == 0 || entries[i].Inputs[0].Input.Kind != protocol.InputMove {
			continue
		}
		entries[i].Inputs = nil
		dropped = true
		break
	}
	if !dropped {
		t.Fatalf("no MOVE input to drop")
	}
	tampered := t.TempDir()
	w := NewJSONLZstdWriter(filepath.Join(tampered, TicksPrefix), TicksPrefix)
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := Replay(newReplayWorld(t), tampered, ReplayOptions{})
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("err=%v want digest mismatch", err)
	}
}

func TestReplay_CorruptJournal(t *testing.T) {
	dir := t.TempDir()
	ticks := filepath.Join(dir, TicksPrefix)
	if err := os.MkdirAll(ticks, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(ticks, "ticks-2026-01-01-00.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	enc, _ := zstd.NewWriter(f)
	_, _ = enc.Write([]byte("{not json\n"))
	_ = enc.Close()
	_ = f.Close()

	if _, err := Replay(newReplayWorld(t), dir, ReplayOptions{}); err == nil {
		t.Fatalf("expected error on corrupt journal")
	}
}

func TestMeta_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := RunMeta{
		WorldID:     "w",
		Seed:        5,
		ItemsDigest: "abc",
		Tuning:      replayConfig().Tuning,
		StartedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	if err := WriteMeta(dir, in); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	out, err := ReadMeta(dir)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if out.Seed != in.Seed || out.Tuning != in.Tuning || !out.StartedAt.Equal(in.StartedAt) {
		t.Fatalf("meta mismatch: %+v vs %+v", out, in)
	}
}

func TestRuns_LatestFirstByName(t *testing.T) {
	data := t.TempDir()
	if _, err := LatestRun(data, "w"); err == nil {
		t.Fatalf("expected error without runs")
	}
	for _, name := range []string{"20260102T000000Z", "20260101T235959Z"} {
		if err := WriteMeta(filepath.Join(data, "worlds", "w", name), RunMeta{WorldID: "w"}); err != nil {
			t.Fatalf("WriteMeta: %v", err)
		}
	}
	// A directory without world.json is not a run.
	if err := os.MkdirAll(filepath.Join(data, "worlds", "w", "20270101T000000Z"), 0o755); err != nil {
		t.Fatal(err)
	}
	runs, err := Runs(data, "w")
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs=%v", runs)
	}
	latest, err := LatestRun(data, "w")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if filepath.Base(latest) != "20260102T000000Z" {
		t.Fatalf("latest=%s", latest)
	}
}
