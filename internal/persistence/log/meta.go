package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dishrush.game/internal/sim/tuning"
)

const metaFile = "world.json"

// RunMeta is what a replay needs besides the journals: a world is a pure
// function of its seed, tuning, catalogs and the recorded inputs.
type RunMeta struct {
	WorldID     string        `json:"world_id"`
	Seed        int64         `json:"seed"`
	ItemsDigest string        `json:"items_digest"`
	Tuning      tuning.Tuning `json:"tuning"`
	StartedAt   time.Time     `json:"started_at"`
}

func WriteMeta(worldDir string, m RunMeta) error {
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(worldDir, metaFile), append(b, '\n'), 0o644)
}

func ReadMeta(worldDir string) (RunMeta, error) {
	var m RunMeta
	b, err := os.ReadFile(filepath.Join(worldDir, metaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", metaFile, err)
	}
	return m, nil
}

// Runs lists the run directories of a world, oldest first. Run directory
// names are UTC start timestamps, so lexical order is chronological.
func Runs(dataDir, worldID string) ([]string, error) {
	base := filepath.Join(dataDir, "worlds", worldID)
	ents, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(base, e.Name(), metaFile)); err != nil {
			continue
		}
		out = append(out, filepath.Join(base, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func LatestRun(dataDir, worldID string) (string, error) {
	runs, err := Runs(dataDir, worldID)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs for world %q under %s", worldID, dataDir)
	}
	return runs[len(runs)-1], nil
}
