package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/world"
)

const (
	TicksPrefix   = "ticks"
	SignalsPrefix = "signals"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickLogger writes one JSONL entry per tick (compressed). The world calls it
// from its loop, so the entry is only marshalled there.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, TicksPrefix), TicksPrefix)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// SignalLogger journals gameplay signals off the world loop. Handle never
// blocks; when the queue is full the record is dropped and counted.
type SignalLogger struct {
	w  *JSONLZstdWriter
	ch chan events.Record

	dropped atomic.Uint64
	failed  atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

func NewSignalLogger(worldDir string, queue int) *SignalLogger {
	if queue <= 0 {
		queue = 4096
	}
	l := &SignalLogger{
		w:    NewJSONLZstdWriter(filepath.Join(worldDir, SignalsPrefix), SignalsPrefix),
		ch:   make(chan events.Record, queue),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

// Handle matches world.SignalHandler.
func (l *SignalLogger) Handle(agentID string, tick uint64, e events.Event) {
	rec, err := events.NewRecord(tick, e)
	if err != nil {
		l.failed.Add(1)
		return
	}
	rec.Agent = agentID
	select {
	case l.ch <- rec:
	default:
		l.dropped.Add(1)
	}
}

func (l *SignalLogger) loop() {
	defer close(l.done)
	for rec := range l.ch {
		if err := l.w.Write(rec); err != nil {
			l.failed.Add(1)
		}
	}
}

func (l *SignalLogger) Dropped() uint64 { return l.dropped.Load() }
func (l *SignalLogger) Failed() uint64  { return l.failed.Load() }

// Close drains queued records and closes the current file. Handle must not
// be called after Close.
func (l *SignalLogger) Close() error {
	l.once.Do(func() { close(l.ch) })
	<-l.done
	return l.w.Close()
}
