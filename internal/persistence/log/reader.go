package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/world"
)

// ListFiles returns prefix-*.jsonl.zst files in dir in chronological order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ScanFile calls fn for every line of a compressed JSONL file.
func ScanFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sc.Err()
}

func ReadSignals(worldDir string, fn func(events.Record) error) error {
	files, err := ListFiles(filepath.Join(worldDir, SignalsPrefix), SignalsPrefix)
	if err != nil {
		return err
	}
	for _, p := range files {
		err := ScanFile(p, func(line []byte) error {
			var rec events.Record
			if err := json.Unmarshal(line, &rec); err != nil {
				return err
			}
			return fn(rec)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func ReadTicks(worldDir string, fn func(world.TickLogEntry) error) error {
	files, err := ListFiles(filepath.Join(worldDir, TicksPrefix), TicksPrefix)
	if err != nil {
		return err
	}
	for _, p := range files {
		err := ScanFile(p, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return err
			}
			return fn(entry)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
